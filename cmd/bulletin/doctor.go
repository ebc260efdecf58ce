package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-news-bulletin/internal/assets"
	"github.com/example/go-news-bulletin/internal/config"
	"github.com/example/go-news-bulletin/internal/doctor"
	"github.com/example/go-news-bulletin/internal/history"
)

// probeVersion runs `exe flag` and returns the first output line. Tests
// replace it to avoid depending on installed binaries.
var probeVersion = func(ctx context.Context, exe, flag string) (string, error) {
	out, err := exec.CommandContext(ctx, exe, flag).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s failed: %w", exe, flag, err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run preflight checks for rendering",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			result := doctor.Run(doctorConfig(ctx, cfg), out)

			store, err := history.Open(ctx, cfg.Paths.HistoryDB)
			if err != nil {
				result.AddFailure(fmt.Sprintf("history db: %v", err))
				_, _ = fmt.Fprintf(out, "%s history db: %v\n", doctor.FailMark, err)
			} else {
				_ = store.Close()
				_, _ = fmt.Fprintf(out, "%s history db: %s\n", doctor.PassMark, cfg.Paths.HistoryDB)
			}

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}
				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")
			return nil
		},
	}
}

func doctorConfig(ctx context.Context, cfg config.Config) doctor.Config {
	dcfg := doctor.Config{
		Settings: func() error { return config.Validate(cfg) },
		Assets: func() (int, error) {
			set, err := newAssetValidator(cfg).Validate(ctx, assets.PlanFromConfig(cfg))
			if err != nil {
				return 0, err
			}
			return len(set.Names()), nil
		},
		OutputDir: cfg.Paths.OutputDir,
	}

	if !strings.EqualFold(cfg.Output.Format, "wav") {
		exe := cfg.FFmpeg.Path
		if exe == "" {
			exe = "ffmpeg"
		}
		dcfg.FFmpegVersion = func() (string, error) { return probeVersion(ctx, exe, "-version") }
	}

	if provider, err := config.NormalizeProvider(cfg.TTS.Provider); err == nil && provider == config.ProviderPocket {
		exe := cfg.TTS.Pocket.CLIPath
		if exe == "" {
			exe = "pocket-tts"
		}
		dcfg.PocketTTSVersion = func() (string, error) { return probeVersion(ctx, exe, "--version") }
		dcfg.PythonVersion = func() (string, error) {
			for _, bin := range []string{"python3", "python"} {
				if v, err := probeVersion(ctx, bin, "--version"); err == nil && v != "" {
					return v, nil
				}
			}
			return "", errors.New("python3/python not found on PATH")
		}
	}

	return dcfg
}
