// Package encoder flattens a timeline and encodes it to the delivered container.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/example/go-news-bulletin/internal/audio"
	"github.com/example/go-news-bulletin/internal/config"
	"github.com/example/go-news-bulletin/internal/fault"
	"github.com/example/go-news-bulletin/internal/timeline"
)

const ContainerWAV = "wav"

var ErrEmptyTimeline = errors.New("timeline is empty")

var contentTypes = map[string]string{
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"ogg":  "audio/ogg",
	"opus": "audio/ogg; codecs=opus",
	"flac": "audio/flac",
}

// ContentType returns the MIME type for a container name.
func ContentType(container string) string {
	if ct, ok := contentTypes[container]; ok {
		return ct
	}

	return "application/octet-stream"
}

type Options struct {
	Container string
	Format    audio.Format
	BitDepth  int
	Bitrate   string
	Normalize bool
	PeakDBFS  float64
	// Limit runs a peak limiter at LimitDBFS over the mix before clipping.
	Limit      bool
	LimitDBFS  float64
	DCBlock    bool
	Transcoder *audio.Transcoder
	Logger     *slog.Logger
}

// OptionsFromConfig maps output and ffmpeg settings onto encoder options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Container: cfg.Output.Format,
		Format:    cfg.OutputFormat(),
		BitDepth:  cfg.Output.BitDepth,
		Bitrate:   cfg.Output.Bitrate,
		Normalize: cfg.Output.Normalize,
		PeakDBFS:  cfg.Output.PeakDBFS,
		Limit:     cfg.Output.Limiter,
		LimitDBFS: cfg.Output.LimiterCeilingDB,
		DCBlock:   cfg.Output.DCBlock,
		Transcoder: &audio.Transcoder{
			Binary:  cfg.FFmpeg.Path,
			Timeout: time.Duration(cfg.FFmpeg.TimeoutSeconds) * time.Second,
		},
	}
}

type Encoder struct {
	opts   Options
	hooks  []audio.Hook
	logger *slog.Logger
}

// Result is an encoded bulletin with the measurements taken before encoding.
type Result struct {
	Data        []byte
	Container   string
	ContentType string
	Format      audio.Format
	Frames      int
	Duration    time.Duration
	Loudness    audio.Loudness
	Clipped     int
}

func New(opts Options) (*Encoder, error) {
	if opts.Container == "" {
		opts.Container = ContainerWAV
	}
	if opts.Container != ContainerWAV && !slices.Contains(audio.Containers(), opts.Container) {
		return nil, fault.Encoding(opts.Container, audio.ErrUnsupportedContainer)
	}
	if opts.BitDepth == 0 {
		opts.BitDepth = 16
	}
	if opts.BitDepth != 16 && opts.BitDepth != 24 {
		return nil, fault.Encoding(opts.Container, fmt.Errorf("unsupported bit depth %d", opts.BitDepth))
	}
	if opts.Container != ContainerWAV && opts.Transcoder == nil {
		return nil, fault.Encoding(opts.Container, audio.ErrFFmpegNotFound)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Encoder{opts: opts, logger: logger}
	if opts.DCBlock {
		e.hooks = append(e.hooks, audio.DCBlock)
	}
	if opts.Normalize {
		peak := opts.PeakDBFS
		e.hooks = append(e.hooks, func(b audio.Buffer) audio.Buffer { return audio.PeakNormalize(b, peak) })
	}

	return e, nil
}

func (e *Encoder) Container() string { return e.opts.Container }

// Encode mixes the timeline down, converts it to the output format and
// encodes it. Every failure is an Encoding fault.
func (e *Encoder) Encode(ctx context.Context, tl *timeline.Timeline) (*Result, error) {
	container := e.opts.Container
	if tl == nil || tl.Extent() == 0 {
		return nil, fault.Encoding(container, ErrEmptyTimeline)
	}

	var (
		mix     audio.Buffer
		clipped int
	)
	if e.opts.Limit {
		var err error
		mix, clipped, err = tl.MixdownLimited(e.opts.LimitDBFS)
		if err != nil {
			return nil, fault.Encoding(container, err)
		}
	} else {
		mix, clipped = tl.Mixdown()
	}
	if clipped > 0 {
		e.logger.Warn("mix clipped", slog.Int("samples", clipped))
	}

	target := e.opts.Format
	if target == (audio.Format{}) {
		target = tl.Format
	}
	if err := target.Validate(); err != nil {
		return nil, fault.Encoding(container, err)
	}

	converted, err := audio.Convert(mix, target)
	if err != nil {
		return nil, fault.Encoding(container, err)
	}
	buf := audio.ApplyHooks(converted, e.hooks...)

	data, err := audio.EncodeWAV(buf, e.opts.BitDepth)
	if err != nil {
		return nil, fault.Encoding(container, err)
	}

	if container != ContainerWAV {
		data, err = e.opts.Transcoder.FromWAV(ctx, data, container, e.opts.Bitrate)
		if err != nil {
			return nil, fault.Encoding(container, err)
		}
	}

	res := &Result{
		Data:        data,
		Container:   container,
		ContentType: ContentType(container),
		Format:      target,
		Frames:      buf.Frames(),
		Duration:    buf.Duration(),
		Loudness:    audio.Measure(buf),
		Clipped:     clipped,
	}

	e.logger.Info("bulletin encoded",
		slog.String("container", container),
		slog.String("format", target.String()),
		slog.Int("bytes", len(data)),
		slog.Int64("duration_ms", res.Duration.Milliseconds()),
		slog.Float64("peak_dbfs", res.Loudness.PeakDBFS),
	)

	return res, nil
}
