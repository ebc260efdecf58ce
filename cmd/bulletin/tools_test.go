package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pockettts "github.com/cwbudde/go-call-pocket-tts"

	"github.com/example/go-news-bulletin/internal/config"
	"github.com/example/go-news-bulletin/internal/history"
	"github.com/example/go-news-bulletin/internal/testutil"
	"github.com/example/go-news-bulletin/internal/tts"
)

func TestHistoryCommand(t *testing.T) {
	cfg := testutil.BulletinConfig(t)
	useConfig(t, cfg)

	out, err := execute(t, newHistoryCmd(), "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "no runs recorded") {
		t.Errorf("empty history output = %q", out)
	}

	store, err := history.Open(context.Background(), cfg.Paths.HistoryDB)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	r, _ := store.Start(context.Background())
	r.Fail(errors.New("boom"))
	if err := store.Finish(context.Background(), r); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	_ = store.Close()

	out, err = execute(t, newHistoryCmd(), "", "--limit", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, want := range []string{r.ID[:8], "Failed", "Other"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func stubProbe(t *testing.T, fn func(ctx context.Context, exe, flag string) (string, error)) {
	t.Helper()

	orig := probeVersion
	t.Cleanup(func() { probeVersion = orig })
	probeVersion = fn
}

func TestDoctorCommand(t *testing.T) {
	t.Run("wav output with openai passes", func(t *testing.T) {
		cfg := testutil.BulletinConfig(t)
		useConfig(t, cfg)
		stubProbe(t, func(context.Context, string, string) (string, error) {
			t.Error("no binary should be probed")
			return "", nil
		})

		out, err := execute(t, newDoctorCmd(), "")
		if err != nil {
			t.Fatalf("doctor: %v\n%s", err, out)
		}
		if !strings.Contains(out, "doctor checks passed") {
			t.Errorf("output = %s", out)
		}
	})

	t.Run("mp3 output needs ffmpeg", func(t *testing.T) {
		cfg := testutil.BulletinConfig(t)
		cfg.Output.Format = "mp3"
		useConfig(t, cfg)
		stubProbe(t, func(_ context.Context, exe, _ string) (string, error) {
			return "", errors.New(exe + ": not found")
		})

		out, err := execute(t, newDoctorCmd(), "")
		if err == nil {
			t.Fatal("expected doctor failure")
		}
		if !strings.Contains(out, "ffmpeg") {
			t.Errorf("output = %s", out)
		}
	})

	t.Run("pocket provider probes pocket-tts and python", func(t *testing.T) {
		cfg := testutil.BulletinConfig(t)
		cfg.TTS.Provider = config.ProviderPocket
		useConfig(t, cfg)

		var probed []string
		stubProbe(t, func(_ context.Context, exe, _ string) (string, error) {
			probed = append(probed, exe)
			if exe == "python3" {
				return "Python 3.12.2", nil
			}
			return "pocket-tts 1.0.0", nil
		})

		if out, err := execute(t, newDoctorCmd(), ""); err != nil {
			t.Fatalf("doctor: %v\n%s", err, out)
		}
		if strings.Join(probed, ",") != "pocket-tts,python3" {
			t.Errorf("probed = %v", probed)
		}
	})
}

func TestVoiceExport(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Paths.VoiceManifest = filepath.Join(dir, "voices", "manifest.json")
	useConfig(t, cfg)

	origExport, origLook := exportVoice, lookPath
	t.Cleanup(func() { exportVoice, lookPath = origExport, origLook })

	lookPath = func(string) (string, error) { return "/usr/bin/pocket-tts", nil }

	var gotAudio string
	exportVoice = func(_ context.Context, audioPath, outPath string, opts *pockettts.ExportVoiceOptions) error {
		gotAudio = audioPath
		if !opts.Quiet {
			t.Error("quiet option not forwarded")
		}
		return os.WriteFile(outPath, []byte("state"), 0o644)
	}

	out := filepath.Join(dir, "voices", "anna.safetensors")
	if _, err := execute(t, newVoiceCmd(), "", "export", "--audio", "prompt.wav", "--out", out, "--id", "anna", "--license", "cc-by-4.0"); err != nil {
		t.Fatalf("voice export: %v", err)
	}
	if gotAudio != "prompt.wav" {
		t.Errorf("audio = %q", gotAudio)
	}

	mgr, err := tts.NewVoiceManager(cfg.Paths.VoiceManifest)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	voices := mgr.ListVoices()
	if len(voices) != 1 || voices[0].ID != "anna" || voices[0].Path != "anna.safetensors" {
		t.Fatalf("voices = %+v", voices)
	}
	if resolved, err := mgr.Resolve("anna"); err != nil || resolved != out {
		t.Errorf("Resolve = %q, %v", resolved, err)
	}

	listing, err := execute(t, newVoiceCmd(), "", "list")
	if err != nil {
		t.Fatalf("voice list: %v", err)
	}
	if !strings.Contains(listing, "anna") || !strings.Contains(listing, "cc-by-4.0") {
		t.Errorf("list output = %s", listing)
	}
}

func TestVoiceExport_RequiresPocketTTS(t *testing.T) {
	useConfig(t, config.DefaultConfig())

	origLook := lookPath
	t.Cleanup(func() { lookPath = origLook })
	lookPath = func(string) (string, error) { return "", errors.New("not found") }

	_, err := execute(t, newVoiceCmd(), "", "export", "--audio", "a.wav", "--out", "b.safetensors")
	if err == nil || !strings.Contains(err.Error(), "pocket-tts") {
		t.Fatalf("err = %v", err)
	}
}
