package tts

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/go-news-bulletin/internal/config"
)

func TestPermanent(t *testing.T) {
	base := errors.New("bad voice")

	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}

	wrapped := fmt.Errorf("segment 3: %w", Permanent(base))
	if !IsPermanent(wrapped) {
		t.Error("IsPermanent should see through wrapping")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Permanent should keep the cause reachable")
	}
	if IsPermanent(base) {
		t.Error("plain error reported permanent")
	}
}

func TestNewSelectsProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     string
		wantErr  bool
	}{
		{"openai", "openai", "openai", false},
		{"piper alias", "wyoming", "piper", false},
		{"pocket alias", "pocket-tts", "pocket", false},
		{"unknown", "festival", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.TTS.Provider = tc.provider
			cfg.TTS.OpenAI.APIKey = "k"

			synth, err := New(cfg, nil)
			if (err != nil) != tc.wantErr {
				t.Fatalf("New err = %v; wantErr %v", err, tc.wantErr)
			}
			if err == nil && synth.Name() != tc.want {
				t.Errorf("Name = %q; want %q", synth.Name(), tc.want)
			}
		})
	}
}
