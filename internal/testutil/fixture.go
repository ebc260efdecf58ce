package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-news-bulletin/internal/audio"
	"github.com/example/go-news-bulletin/internal/config"
)

// FixtureFormat is the small working format used by fixture configs.
var FixtureFormat = audio.Format{SampleRate: 8000, Channels: 1}

// FixtureAssetMS are the durations of the assets written by BulletinConfig.
var FixtureAssetMS = map[string]int64{
	config.AssetIntro: 2000,
	config.AssetFirst: 500,
	config.AssetBreak: 300,
	config.AssetOutro: 1500,
	config.AssetBed:   1000,
}

// Script is a well-formed two-story bulletin.
const Script = `[SFX: NEWS INTRO]
[SFX: ARTICLE START]
Good evening. Council approved the new bridge.
[SFX: ARTICLE BREAK]
Rain is expected overnight.
[SFX: NEWS OUTRO]`

// BulletinConfig returns a valid config whose assets are tone fixtures in a
// temp dir, rendering WAV output in FixtureFormat with zero offsets.
func BulletinConfig(tb testing.TB) config.Config {
	tb.Helper()

	root := tb.TempDir()
	assetsDir := filepath.Join(root, "assets")
	mkdir(tb, assetsDir)

	freq := 330.0
	for name, ms := range FixtureAssetMS {
		WriteWAV(tb, assetsDir, name+".wav", Tone(FixtureFormat, ms, freq, 0.2))
		freq += 110
	}

	cfg := config.DefaultConfig()
	cfg.Paths.AssetsDir = assetsDir
	cfg.Paths.OutputDir = filepath.Join(root, "output")
	cfg.Paths.HistoryDB = filepath.Join(root, "output", "history.db")
	cfg.Paths.LockFile = filepath.Join(root, "output", ".lock")
	cfg.Mix.SampleRate = FixtureFormat.SampleRate
	cfg.Mix.Channels = FixtureFormat.Channels
	outro := cfg.Mix.Assets[config.AssetOutro]
	outro.OffsetMS = 0
	cfg.Mix.Assets[config.AssetOutro] = outro
	cfg.TTS.OpenAI.APIKey = "test-key"
	cfg.TTS.RetryBackoffMS = 1
	cfg.Output.Format = "wav"

	return cfg
}

func mkdir(tb testing.TB, dir string) {
	tb.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		tb.Fatalf("mkdir %s: %v", dir, err)
	}
}
