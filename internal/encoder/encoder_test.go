package encoder

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/example/go-news-bulletin/internal/audio"
	"github.com/example/go-news-bulletin/internal/config"
	"github.com/example/go-news-bulletin/internal/fault"
	"github.com/example/go-news-bulletin/internal/testutil"
	"github.com/example/go-news-bulletin/internal/timeline"
)

var working = audio.Format{SampleRate: 8000, Channels: 1}

func sampleTimeline() *timeline.Timeline {
	return &timeline.Timeline{
		Format: working,
		Placements: []timeline.Placement{
			{Source: timeline.SourceAsset, StartFrame: 0, Buffer: testutil.Tone(working, 500, 440, 0.3)},
			{Source: timeline.SourceSpeech, StartFrame: working.FramesForMS(400), Buffer: testutil.Tone(working, 750, 220, 0.3)},
		},
	}
}

func TestEncodeWAVRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		output audio.Format
		depth  int
	}{
		{"working format 16-bit", working, 16},
		{"working format 24-bit", working, 24},
		{"upsampled stereo", audio.Format{SampleRate: 16000, Channels: 2}, 16},
		{"downsampled", audio.Format{SampleRate: 6000, Channels: 1}, 16},
	}

	tl := sampleTimeline()
	wantMS := tl.ExtentMS()

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := New(Options{Container: "wav", Format: tc.output, BitDepth: tc.depth})
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			res, err := enc.Encode(context.Background(), tl)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			testutil.AssertValidWAV(t, res.Data, tc.output, tc.depth)

			decoded, err := audio.DecodeWAV(res.Data)
			if err != nil {
				t.Fatalf("DecodeWAV: %v", err)
			}

			want := tc.output.FramesForMS(wantMS)
			if d := decoded.Frames() - want; d < -1 || d > 1 {
				t.Errorf("decoded %d frames; want %d within one frame", decoded.Frames(), want)
			}
			if res.ContentType != "audio/wav" {
				t.Errorf("content type = %q", res.ContentType)
			}
		})
	}
}

func TestEncodeNormalizes(t *testing.T) {
	enc, err := New(Options{Normalize: true, PeakDBFS: -1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := enc.Encode(context.Background(), sampleTimeline())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if math.Abs(res.Loudness.PeakDBFS-(-1)) > 0.01 {
		t.Errorf("peak = %.3f dBFS; want -1", res.Loudness.PeakDBFS)
	}
	if res.Format != working {
		t.Errorf("format = %v; want working format when none is set", res.Format)
	}
}

func TestEncodeReportsClipping(t *testing.T) {
	tl := &timeline.Timeline{
		Format: working,
		Placements: []timeline.Placement{
			{Buffer: testutil.Constant(working, 10, 0.75)},
			{Buffer: testutil.Constant(working, 10, 0.75)},
		},
	}

	enc, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := enc.Encode(context.Background(), tl)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if res.Clipped != working.FramesForMS(10) {
		t.Errorf("clipped = %d; want %d", res.Clipped, working.FramesForMS(10))
	}
}

func TestEncodeLimiterHoldsPeaks(t *testing.T) {
	tl := &timeline.Timeline{
		Format: working,
		Placements: []timeline.Placement{
			{Buffer: testutil.Constant(working, 10, 0.75)},
			{Buffer: testutil.Constant(working, 10, 0.75)},
		},
	}

	enc, err := New(Options{Limit: true, LimitDBFS: -1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := enc.Encode(context.Background(), tl)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if res.Clipped > 2 {
		t.Errorf("clipped = %d; want only the limiter attack", res.Clipped)
	}
}

func TestEncodeDCBlock(t *testing.T) {
	tl := &timeline.Timeline{
		Format:     working,
		Placements: []timeline.Placement{{Buffer: testutil.Constant(working, 1000, 0.5)}},
	}

	for _, tc := range []struct {
		name    string
		dcBlock bool
		want    float64
	}{
		{"offset kept by default", false, 0.5},
		{"offset removed when enabled", true, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := New(Options{DCBlock: tc.dcBlock})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			res, err := enc.Encode(context.Background(), tl)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := audio.DecodeWAV(res.Data)
			if err != nil {
				t.Fatalf("DecodeWAV: %v", err)
			}

			var sum float64
			for _, s := range decoded.Samples {
				sum += float64(s)
			}
			if mean := sum / float64(len(decoded.Samples)); math.Abs(mean-tc.want) > 0.02 {
				t.Errorf("mean = %.4f; want %.1f", mean, tc.want)
			}
		})
	}
}

func TestEncodingFaults(t *testing.T) {
	t.Run("unknown container", func(t *testing.T) {
		_, err := New(Options{Container: "aiff"})
		if !errors.Is(err, fault.ErrEncoding) || !errors.Is(err, audio.ErrUnsupportedContainer) {
			t.Fatalf("err = %v; want encoding fault", err)
		}
	})

	t.Run("unsupported bit depth", func(t *testing.T) {
		if _, err := New(Options{BitDepth: 12}); !errors.Is(err, fault.ErrEncoding) {
			t.Fatalf("err = %v; want encoding fault", err)
		}
	})

	t.Run("empty timeline", func(t *testing.T) {
		enc, err := New(Options{})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		_, err = enc.Encode(context.Background(), &timeline.Timeline{Format: working})
		if !errors.Is(err, fault.ErrEncoding) || !errors.Is(err, ErrEmptyTimeline) {
			t.Fatalf("err = %v; want empty timeline encoding fault", err)
		}
	})

	t.Run("transcoder failure", func(t *testing.T) {
		enc, err := New(Options{Container: "mp3", Transcoder: &audio.Transcoder{Binary: "/nonexistent/ffmpeg"}})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		_, err = enc.Encode(context.Background(), sampleTimeline())
		if !errors.Is(err, fault.ErrEncoding) {
			t.Fatalf("err = %v; want encoding fault", err)
		}
	})
}

func TestNewAcceptsEveryConfiguredFormat(t *testing.T) {
	for _, format := range config.OutputFormats {
		t.Run(format, func(t *testing.T) {
			if _, err := New(Options{Container: format, Transcoder: &audio.Transcoder{}}); err != nil {
				t.Errorf("New(%q) = %v", format, err)
			}
		})
	}
}

func TestOptionsFromConfigProcessing(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.DCBlock = true
	cfg.Output.LimiterCeilingDB = -0.5

	opts := OptionsFromConfig(cfg)
	if !opts.Limit || opts.LimitDBFS != -0.5 || !opts.DCBlock {
		t.Errorf("options = limit %v at %v, dc block %v", opts.Limit, opts.LimitDBFS, opts.DCBlock)
	}
}

func TestEncodeMP3WithFFmpeg(t *testing.T) {
	testutil.RequireFFmpeg(t)

	cfg := config.DefaultConfig()
	cfg.Output.Format = "mp3"
	cfg.Output.SampleRate = 44100
	cfg.Output.Channels = 2
	opts := OptionsFromConfig(cfg)

	enc, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tl := sampleTimeline()
	res, err := enc.Encode(context.Background(), tl)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if res.ContentType != "audio/mpeg" {
		t.Errorf("content type = %q", res.ContentType)
	}

	dec := audio.Decoder{Transcoder: opts.Transcoder}
	back, err := dec.Decode(context.Background(), res.Data, res.Format)
	if err != nil {
		t.Fatalf("decode mp3: %v", err)
	}

	// MP3 framing adds encoder delay and padding.
	want := time.Duration(tl.ExtentMS()) * time.Millisecond
	if d := back.Duration() - want; d < -60*time.Millisecond || d > 100*time.Millisecond {
		t.Errorf("decoded duration %v; want about %v", back.Duration(), want)
	}
}
