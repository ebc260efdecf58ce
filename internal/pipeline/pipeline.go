// Package pipeline renders a bulletin script into encoded audio: validate
// assets, segment the script, synthesise speech, compose, encode.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/go-news-bulletin/internal/assets"
	"github.com/example/go-news-bulletin/internal/audio"
	"github.com/example/go-news-bulletin/internal/config"
	"github.com/example/go-news-bulletin/internal/encoder"
	"github.com/example/go-news-bulletin/internal/script"
	"github.com/example/go-news-bulletin/internal/speech"
	"github.com/example/go-news-bulletin/internal/timeline"
	"github.com/example/go-news-bulletin/internal/tts"
)

var ErrNoInput = errors.New("either a script or segments is required")

// Input is either raw script text or already parsed segments. Segments win
// when both are set.
type Input struct {
	Script   string
	Segments []script.Segment
}

type Result struct {
	Audio       []byte
	Container   string
	ContentType string
	Format      audio.Format
	Duration    time.Duration
	Loudness    audio.Loudness
	Clipped     int
	Segments    []script.Segment
	Timeline    *timeline.Timeline
}

// SpeechSegments counts the spoken segments of the rendered script.
func (r *Result) SpeechSegments() int { return script.SpeechCount(r.Segments) }

type Option func(*Renderer)

func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// Renderer runs the full assembly. It keeps no state between runs and is
// safe for concurrent use.
type Renderer struct {
	plan       assets.Plan
	parser     *script.Parser
	validator  *assets.Validator
	speech     *speech.Renderer
	compositor *timeline.Compositor
	encoder    *encoder.Encoder
	logger     *slog.Logger
}

// New wires the pipeline stages from cfg around synth. cfg is expected to
// have passed config.Validate.
func New(cfg config.Config, synth tts.Synthesizer, opts ...Option) (*Renderer, error) {
	if synth == nil {
		return nil, errors.New("pipeline: synthesizer is required")
	}

	r := &Renderer{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}

	decoder := NewDecoder(cfg)

	encOpts := encoder.OptionsFromConfig(cfg)
	encOpts.Transcoder = decoder.Transcoder
	encOpts.Logger = r.logger
	enc, err := encoder.New(encOpts)
	if err != nil {
		return nil, err
	}

	r.plan = assets.PlanFromConfig(cfg)
	r.parser = script.NewParser(r.logger)
	r.validator = assets.NewValidator(decoder,
		assets.WithWorkers(cfg.Mix.DecodeWorkers),
		assets.WithTimeout(time.Duration(cfg.Mix.DecodeTimeoutSeconds)*time.Second),
		assets.WithLogger(r.logger),
	)
	r.speech = speech.NewRenderer(synth, decoder, speech.Options{
		Format:        cfg.WorkingFormat(),
		Voice:         cfg.TTS.Voice,
		Model:         cfg.TTS.Model,
		Speed:         cfg.TTS.Speed,
		GainDB:        cfg.Mix.VoiceGainDB,
		Concurrency:   cfg.TTS.Concurrency,
		Retries:       cfg.TTS.Retries,
		RetryBackoff:  time.Duration(cfg.TTS.RetryBackoffMS) * time.Millisecond,
		Timeout:       time.Duration(cfg.TTS.TimeoutSeconds) * time.Second,
		MaxChunkChars: cfg.TTS.MaxChunkChars,
		Logger:        r.logger,
	})
	r.compositor = timeline.NewCompositor(r.logger)
	r.encoder = enc

	return r, nil
}

// NewDecoder returns the asset and speech decoder configured by cfg.
func NewDecoder(cfg config.Config) audio.Decoder {
	return audio.Decoder{Transcoder: &audio.Transcoder{
		Binary:  cfg.FFmpeg.Path,
		Timeout: time.Duration(cfg.FFmpeg.TimeoutSeconds) * time.Second,
	}}
}

// Segments parses and validates the input without touching assets or TTS.
func (r *Renderer) Segments(in Input) ([]script.Segment, error) {
	if in.Segments != nil {
		if err := script.Validate(in.Segments); err != nil {
			return nil, err
		}
		return in.Segments, nil
	}
	if in.Script == "" {
		return nil, ErrNoInput
	}

	return r.parser.Parse(in.Script)
}

// ValidateAssets loads and checks every asset of the mix plan.
func (r *Renderer) ValidateAssets(ctx context.Context) (*assets.Set, error) {
	return r.validator.Validate(ctx, r.plan)
}

// Render produces the encoded bulletin. Script and asset problems are
// reported before any synthesis call is made. Failures are *fault.Error
// values and no partial audio is returned.
func (r *Renderer) Render(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()

	segs, err := r.Segments(in)
	if err != nil {
		return nil, err
	}

	set, err := r.ValidateAssets(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Info("assets validated", slog.Int("count", len(set.Names())), slog.Int("segments", len(segs)))

	clips, err := r.speech.Render(ctx, segs)
	if err != nil {
		return nil, err
	}

	tl, err := r.compositor.Compose(segs, set, clips)
	if err != nil {
		return nil, err
	}
	r.logger.Info("timeline composed",
		slog.Int("placements", len(tl.Placements)),
		slog.Int64("extent_ms", tl.ExtentMS()),
	)

	enc, err := r.encoder.Encode(ctx, tl)
	if err != nil {
		return nil, err
	}

	r.logger.Info("bulletin rendered",
		slog.String("container", enc.Container),
		slog.Int("speech_segments", script.SpeechCount(segs)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &Result{
		Audio:       enc.Data,
		Container:   enc.Container,
		ContentType: enc.ContentType,
		Format:      enc.Format,
		Duration:    enc.Duration,
		Loudness:    enc.Loudness,
		Clipped:     enc.Clipped,
		Segments:    segs,
		Timeline:    tl,
	}, nil
}

// Container is the configured output container name.
func (r *Renderer) Container() string { return r.encoder.Container() }
