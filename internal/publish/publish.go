// Package publish delivers an encoded bulletin: to the output directory and
// optionally to S3-compatible storage and an AzuraCast station.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/go-news-bulletin/internal/config"
)

// Artifact is one encoded bulletin ready for delivery.
type Artifact struct {
	RunID       string
	Data        []byte
	Container   string
	ContentType string
	CreatedAt   time.Time
}

// Sink stores an artifact and returns where it ended up.
type Sink interface {
	Name() string
	Publish(ctx context.Context, art Artifact) (string, error)
}

// FormatName expands %Y% %m% %d% %H% %M% %S% and %EXT% in template.
func FormatName(template string, t time.Time, ext string) string {
	r := strings.NewReplacer(
		"%Y%", t.Format("2006"),
		"%m%", t.Format("01"),
		"%d%", t.Format("02"),
		"%H%", t.Format("15"),
		"%M%", t.Format("04"),
		"%S%", t.Format("05"),
		"%EXT%", ext,
	)

	return r.Replace(template)
}

// Delivery is the outcome of one sink.
type Delivery struct {
	Sink     string
	Location string
	Err      error
}

// Fanout publishes to every sink in order. The first sink is primary: if it
// fails nothing else is attempted. Later failures are collected and returned
// joined alongside the deliveries that succeeded.
func Fanout(ctx context.Context, logger *slog.Logger, art Artifact, sinks ...Sink) ([]Delivery, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		out  []Delivery
		errs []error
	)
	for i, s := range sinks {
		loc, err := s.Publish(ctx, art)
		out = append(out, Delivery{Sink: s.Name(), Location: loc, Err: err})
		if err != nil {
			err = fmt.Errorf("%s: %w", s.Name(), err)
			if i == 0 {
				return out, err
			}
			logger.Warn("publish failed", slog.String("sink", s.Name()), slog.String("run_id", art.RunID), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		logger.Info("bulletin published", slog.String("sink", s.Name()), slog.String("location", loc), slog.String("run_id", art.RunID))
	}

	return out, errors.Join(errs...)
}

// Sinks builds the configured sinks with the output directory first.
func Sinks(cfg config.Config, logger *slog.Logger) ([]Sink, error) {
	sinks := []Sink{&FileSink{
		Dir:      cfg.Paths.OutputDir,
		Template: cfg.Output.Filename,
		Latest:   FormatName(cfg.Output.LatestSymlink, time.Time{}, cfg.Output.Format),
	}}

	if cfg.Publish.S3.Enabled {
		s, err := NewS3Sink(cfg.Publish.S3)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Publish.AzuraCast.Enabled {
		s, err := NewAzuraCastSink(cfg.Publish.AzuraCast, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}

	return sinks, nil
}
