package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/example/go-news-bulletin/internal/audio"
	"github.com/example/go-news-bulletin/internal/fault"
)

// Validator decodes every asset of a plan on a bounded worker pool.
type Validator struct {
	decoder audio.Decoder
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Validator)

func WithWorkers(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.workers = n
		}
	}
}

// WithTimeout bounds each asset's decode.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

func NewValidator(decoder audio.Decoder, opts ...Option) *Validator {
	v := &Validator{
		decoder: decoder,
		workers: 4,
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Validate checks that every asset in plan exists, is readable, decodes and
// has a positive duration. On failure it returns the fault for the first
// failing asset in plan order: MissingAsset or UnsupportedAudio.
func (v *Validator) Validate(ctx context.Context, plan Plan) (*Set, error) {
	if err := plan.Format.Validate(); err != nil {
		return nil, fmt.Errorf("working format: %w", err)
	}

	pool, err := ants.NewPool(v.workers)
	if err != nil {
		return nil, fmt.Errorf("create decode pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loaded := make([]*Asset, len(plan.Specs))
	errs := make([]error, len(plan.Specs))
	var wg sync.WaitGroup

	for i, spec := range plan.Specs {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			loaded[i], errs[i] = v.load(ctx, spec, plan.Format)
			if errs[i] != nil {
				cancel()
			}
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit decode of %s: %w", spec.Name, submitErr)
		}
	}
	wg.Wait()

	// Report the earliest real fault; later assets may only show the cancellation.
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		if !errors.Is(err, context.Canceled) {
			return nil, err
		}
	}
	if first != nil {
		return nil, first
	}

	for _, a := range loaded {
		v.logger.Debug("asset validated",
			slog.String("asset", a.Name),
			slog.String("path", a.Path),
			slog.Int64("duration_ms", a.Duration().Milliseconds()),
		)
	}

	return NewSet(plan.Format, loaded...), nil
}

func (v *Validator) load(ctx context.Context, spec Spec, format audio.Format) (*Asset, error) {
	info, err := os.Stat(spec.Path)
	if err != nil {
		return nil, fault.MissingAsset(spec.Name, spec.Path, err)
	}
	if info.IsDir() {
		return nil, fault.MissingAsset(spec.Name, spec.Path, fmt.Errorf("%w: is a directory", fs.ErrInvalid))
	}
	data, err := os.ReadFile(spec.Path)
	if err != nil {
		return nil, fault.MissingAsset(spec.Name, spec.Path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	buf, err := v.decoder.Decode(ctx, data, format)
	if err != nil {
		return nil, fault.UnsupportedAudio(spec.Name, spec.Path, err)
	}
	if buf.Empty() {
		return nil, fault.UnsupportedAudio(spec.Name, spec.Path, errors.New("audio has zero duration"))
	}

	return &Asset{Spec: spec, Buffer: buf}, nil
}
