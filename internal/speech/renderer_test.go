package speech

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/go-news-bulletin/internal/audio"
	"github.com/example/go-news-bulletin/internal/fault"
	"github.com/example/go-news-bulletin/internal/script"
	"github.com/example/go-news-bulletin/internal/testutil"
	"github.com/example/go-news-bulletin/internal/tts"
)

var working = audio.Format{SampleRate: 24000, Channels: 1}

func newRenderer(synth tts.Synthesizer, opts Options) *Renderer {
	opts.Format = working
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	return NewRenderer(synth, audio.Decoder{}, opts)
}

func bulletin() []script.Segment {
	return []script.Segment{
		script.SFX(script.NewsIntro),
		script.SFX(script.ArticleStart),
		script.Speech("First story."),
		script.SFX(script.ArticleBreak),
		script.Speech("  \n "),
		script.SFX(script.ArticleBreak),
		script.Speech("Second story."),
		script.SFX(script.NewsOutro),
	}
}

func TestRenderKeysClipsBySegmentIndex(t *testing.T) {
	stub := &testutil.StubSynthesizer{Format: working, DurationMS: 500}
	r := newRenderer(stub, Options{Concurrency: 2, GainDB: -3, Voice: "onyx"})

	clips, err := r.Render(context.Background(), bulletin())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if len(clips) != 2 {
		t.Fatalf("got %d clips; want 2 (blank speech skipped)", len(clips))
	}
	for _, idx := range []int{2, 6} {
		c, ok := clips[idx]
		if !ok {
			t.Fatalf("missing clip for segment %d", idx)
		}
		if c.Segment != idx || c.GainDB != -3 {
			t.Errorf("clip %d = segment %d gain %v", idx, c.Segment, c.GainDB)
		}
		if got := c.Buffer.Frames(); got != working.FramesForMS(500) {
			t.Errorf("clip %d frames = %d; want %d", idx, got, working.FramesForMS(500))
		}
	}

	if stub.Calls() != 2 {
		t.Errorf("tts calls = %d; want 2", stub.Calls())
	}
	for _, req := range stub.Requests() {
		if req.Voice != "onyx" {
			t.Errorf("voice = %q; want onyx", req.Voice)
		}
	}
}

func TestRenderConvertsToWorkingFormat(t *testing.T) {
	stub := &testutil.StubSynthesizer{Format: audio.Format{SampleRate: 48000, Channels: 2}, DurationMS: 1000}
	r := NewRenderer(stub, audio.Decoder{}, Options{Format: working})

	clips, err := r.Render(context.Background(), []script.Segment{script.Speech("Hello.")})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	buf := clips[0].Buffer
	if buf.Format != working {
		t.Fatalf("format = %v; want %v", buf.Format, working)
	}
	if d := buf.Frames() - working.FramesForMS(1000); d < -1 || d > 1 {
		t.Errorf("frames = %d; want about %d", buf.Frames(), working.FramesForMS(1000))
	}
}

func TestRenderRetries(t *testing.T) {
	tests := []struct {
		name      string
		failTimes int
		err       error
		retries   int
		wantCalls int
		wantErr   bool
	}{
		{"transient failure recovers", 2, errors.New("503"), 3, 3, false},
		{"retries exhausted", 10, errors.New("503"), 2, 3, true},
		{"permanent failure is not retried", 10, tts.Permanent(errors.New("401")), 5, 1, true},
		{"no retries configured", 1, errors.New("reset"), 0, 1, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &testutil.StubSynthesizer{Format: working, DurationMS: 100, FailTimes: tc.failTimes, Err: tc.err}
			r := newRenderer(stub, Options{Retries: tc.retries})

			_, err := r.Render(context.Background(), []script.Segment{script.SFX(script.NewsIntro), script.Speech("Story.")})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v; wantErr %v", err, tc.wantErr)
			}
			if stub.Calls() != tc.wantCalls {
				t.Errorf("calls = %d; want %d", stub.Calls(), tc.wantCalls)
			}
			if err == nil {
				return
			}

			var fe *fault.Error
			if !errors.As(err, &fe) || fe.Kind != fault.KindSpeechSynthesis {
				t.Fatalf("err = %v; want SpeechSynthesis fault", err)
			}
			if fe.Segment != 1 {
				t.Errorf("segment = %d; want 1", fe.Segment)
			}
			if !errors.Is(err, tc.err) {
				t.Errorf("cause not preserved: %v", err)
			}
		})
	}
}

func TestRenderTimeout(t *testing.T) {
	stub := &testutil.StubSynthesizer{Format: working, Block: true}
	r := newRenderer(stub, Options{Timeout: 20 * time.Millisecond})

	_, err := r.Render(context.Background(), []script.Segment{script.Speech("Slow.")})
	if !errors.Is(err, fault.ErrSpeechSynthesis) {
		t.Fatalf("err = %v; want speech synthesis error", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error should mention the timeout: %v", err)
	}
}

func TestRenderChunksLongText(t *testing.T) {
	stub := &testutil.StubSynthesizer{Format: working, DurationMS: 200}
	r := newRenderer(stub, Options{MaxChunkChars: 20})

	clips, err := r.Render(context.Background(), []script.Segment{
		script.Speech("Markets rose today. Rain is expected. Traffic is light."),
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if stub.Calls() != 3 {
		t.Fatalf("calls = %d; want 3 chunks", stub.Calls())
	}
	if got, want := clips[0].Buffer.Frames(), 3*working.FramesForMS(200); got != want {
		t.Errorf("frames = %d; want %d", got, want)
	}
}

// failingSynth fails text containing "bad" and blocks everything else.
type failingSynth struct{}

func (failingSynth) Name() string { return "failing" }

func (failingSynth) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if strings.Contains(req.Text, "bad") {
		return nil, tts.Permanent(errors.New("rejected"))
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRenderCancelsSiblingsOnFailure(t *testing.T) {
	r := newRenderer(failingSynth{}, Options{Concurrency: 3, Timeout: time.Minute})

	done := make(chan error, 1)
	go func() {
		_, err := r.Render(context.Background(), []script.Segment{
			script.Speech("slow one"),
			script.Speech("slow two"),
			script.Speech("bad story"),
		})
		done <- err
	}()

	select {
	case err := <-done:
		var fe *fault.Error
		if !errors.As(err, &fe) || fe.Segment != 2 {
			t.Fatalf("err = %v; want SpeechSynthesis for segment 2", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Render did not cancel blocked siblings")
	}
}
