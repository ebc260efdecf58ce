// Package speech renders the spoken segments of a script through a TTS
// provider and normalises the results to the working audio format.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-news-bulletin/internal/audio"
	"github.com/example/go-news-bulletin/internal/fault"
	"github.com/example/go-news-bulletin/internal/script"
	"github.com/example/go-news-bulletin/internal/text"
	"github.com/example/go-news-bulletin/internal/tts"
)

// Clip is the rendered audio for one speech segment.
type Clip struct {
	Segment int
	Buffer  audio.Buffer
	GainDB  float64
}

type Options struct {
	Format        audio.Format
	Voice         string
	Model         string
	Speed         float64
	GainDB        float64
	Concurrency   int
	Retries       int
	RetryBackoff  time.Duration
	Timeout       time.Duration
	MaxChunkChars int
	Logger        *slog.Logger
}

// Renderer fans speech segments out to a synthesizer with bounded
// concurrency, retries and a per-call timeout.
type Renderer struct {
	synth   tts.Synthesizer
	decoder audio.Decoder
	opts    Options
	logger  *slog.Logger
}

func NewRenderer(synth tts.Synthesizer, decoder audio.Decoder, opts Options) *Renderer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 300 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = 4000
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Renderer{synth: synth, decoder: decoder, opts: opts, logger: logger}
}

// Render synthesises every non-blank speech segment and returns the clips
// keyed by segment index. Blank speech yields no clip. The first segment to
// exhaust its retries cancels the rest and is reported as SpeechSynthesis.
func (r *Renderer) Render(ctx context.Context, segs []script.Segment) (map[int]Clip, error) {
	if err := r.opts.Format.Validate(); err != nil {
		return nil, fmt.Errorf("working format: %w", err)
	}

	var (
		mu    sync.Mutex
		clips = make(map[int]Clip, script.SpeechCount(segs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for i, seg := range segs {
		if !seg.IsSpeech() {
			continue
		}
		spoken := text.Speakable(seg.Text)
		if spoken == "" {
			continue
		}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			start := time.Now()
			buf, err := r.renderText(gctx, i, spoken)
			if err != nil {
				return fault.SpeechSynthesis(i, err)
			}

			r.logger.Info("speech segment rendered",
				slog.Int("segment", i),
				slog.Int("chars", len(spoken)),
				slog.Int64("duration_ms", buf.Duration().Milliseconds()),
				slog.Duration("elapsed", time.Since(start)),
			)

			mu.Lock()
			clips[i] = Clip{Segment: i, Buffer: buf, GainDB: r.opts.GainDB}
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fault.SpeechSynthesis(fault.NoSegment, err)
	}

	return clips, nil
}

// renderText splits long passages at sentence boundaries and joins the
// rendered chunks.
func (r *Renderer) renderText(ctx context.Context, segment int, spoken string) (audio.Buffer, error) {
	out := audio.Buffer{Format: r.opts.Format}
	for _, chunk := range text.ChunkBySentence(spoken, r.opts.MaxChunkChars) {
		buf, err := r.synthesize(ctx, segment, chunk)
		if err != nil {
			return audio.Buffer{}, err
		}
		out, err = audio.Append(out, buf)
		if err != nil {
			return audio.Buffer{}, err
		}
	}

	return out, nil
}

func (r *Renderer) synthesize(ctx context.Context, segment int, chunk string) (audio.Buffer, error) {
	req := tts.Request{Text: chunk, Voice: r.opts.Voice, Model: r.opts.Model, Speed: r.opts.Speed}
	backoff := r.opts.RetryBackoff

	var err error
	for attempt := 0; attempt <= r.opts.Retries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("speech synthesis failed; retrying",
				slog.Int("segment", segment),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.Any("error", err),
			)
			if werr := wait(ctx, backoff); werr != nil {
				return audio.Buffer{}, errors.Join(err, werr)
			}
			backoff *= 2
		}

		var buf audio.Buffer
		buf, err = r.attempt(ctx, req)
		if err == nil {
			return buf, nil
		}
		if tts.IsPermanent(err) || ctx.Err() != nil {
			break
		}
	}

	return audio.Buffer{}, err
}

func (r *Renderer) attempt(ctx context.Context, req tts.Request) (audio.Buffer, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	data, err := r.synth.Synthesize(callCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return audio.Buffer{}, fmt.Errorf("%s timed out after %s: %w", r.synth.Name(), r.opts.Timeout, err)
		}
		return audio.Buffer{}, fmt.Errorf("%s: %w", r.synth.Name(), err)
	}

	buf, err := r.decoder.Decode(callCtx, data, r.opts.Format)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("decode %s audio: %w", r.synth.Name(), err)
	}
	if buf.Empty() {
		return audio.Buffer{}, fmt.Errorf("%s returned no audio", r.synth.Name())
	}

	return buf, nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
