// Package tts turns speech text into WAV audio through a pluggable provider.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/go-news-bulletin/internal/config"
)

// Request is one synthesis call. Empty Voice or Model fall back to the
// provider's configured default.
type Request struct {
	Text  string
	Voice string
	Model string
	Speed float64
}

// Synthesizer produces an encoded audio payload (WAV unless noted by the
// provider) for a single request.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

var ErrEmptyText = errors.New("empty text for synthesis")

// PermanentError marks a failure that retrying cannot fix, such as a rejected
// API key or an unknown voice.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so IsPermanent reports true. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// New builds the synthesizer selected by cfg.TTS.Provider.
func New(cfg config.Config, logger *slog.Logger) (Synthesizer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := config.NormalizeProvider(cfg.TTS.Provider)
	if err != nil {
		return nil, err
	}

	switch provider {
	case config.ProviderOpenAI:
		return NewOpenAI(OpenAIOptions{
			APIKey:  cfg.TTS.OpenAI.APIKey,
			BaseURL: cfg.TTS.OpenAI.BaseURL,
			Voice:   cfg.TTS.Voice,
			Model:   cfg.TTS.Model,
			Logger:  logger,
		})
	case config.ProviderPiper:
		return NewPiper(PiperOptions{
			Endpoint: cfg.TTS.Piper.Endpoint,
			Voice:    cfg.TTS.Voice,
			Logger:   logger,
		})
	case config.ProviderPocket:
		var voices *VoiceManager
		if cfg.Paths.VoiceManifest != "" {
			voices, err = NewVoiceManager(cfg.Paths.VoiceManifest)
			if err != nil {
				logger.Warn("voice manifest unavailable; passing voice through", "path", cfg.Paths.VoiceManifest, "error", err)
				voices = nil
			}
		}

		return NewPocket(PocketOptions{
			ExecutablePath: cfg.TTS.Pocket.CLIPath,
			ConfigPath:     cfg.TTS.Pocket.ConfigPath,
			Quiet:          cfg.TTS.Pocket.Quiet,
			Voice:          cfg.TTS.Voice,
			Voices:         voices,
			Logger:         logger,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported tts provider %q", cfg.TTS.Provider)
	}
}

func dialTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < fallback {
			return d
		}
	}

	return fallback
}
