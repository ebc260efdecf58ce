package main

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"

	pockettts "github.com/cwbudde/go-call-pocket-tts"
	"github.com/spf13/cobra"

	"github.com/example/go-news-bulletin/internal/config"
	"github.com/example/go-news-bulletin/internal/tts"
)

// exportVoice is a seam over the pocket-tts CLI wrapper.
var exportVoice = pockettts.ExportVoice

var lookPath = exec.LookPath

func newVoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Manage newsreader voices for the pocket provider",
	}
	cmd.AddCommand(newVoiceExportCmd())
	cmd.AddCommand(newVoiceListCmd())

	return cmd
}

func newVoiceExportCmd() *cobra.Command {
	var audioPath, outPath, id, license string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a voice state (.safetensors) from a WAV prompt and add it to the manifest",
		Long: "Export a voice state (.safetensors) from a WAV prompt and add it to the manifest.\n\n" +
			"This requires a Python pocket-tts installation.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if audioPath == "" {
				return errors.New("--audio is required")
			}
			if outPath == "" {
				return errors.New("--out is required")
			}
			if id == "" {
				return errors.New("--id is required")
			}

			exe := cfg.TTS.Pocket.CLIPath
			if exe == "" {
				exe = "pocket-tts"
			}
			if _, err := lookPath(exe); err != nil {
				return fmt.Errorf("voice export requires the pocket-tts CLI on PATH or --tts-pocket-cli-path: %w", err)
			}

			err = exportVoice(cmd.Context(), audioPath, outPath, &pockettts.ExportVoiceOptions{
				Config:         cfg.TTS.Pocket.ConfigPath,
				Quiet:          cfg.TTS.Pocket.Quiet,
				ExecutablePath: cfg.TTS.Pocket.CLIPath,
				LogWriter:      cmd.ErrOrStderr(),
			})
			if err != nil {
				var notFound *pockettts.ErrExecutableNotFound
				if errors.As(err, &notFound) {
					return fmt.Errorf("voice export requires the pocket-tts CLI: %w", err)
				}
				return err
			}

			if err := registerVoice(cfg, tts.Voice{ID: id, Path: outPath, License: license}); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "voice %q exported to %s and added to %s\n", id, outPath, cfg.Paths.VoiceManifest)
			return nil
		},
	}

	cmd.Flags().StringVar(&audioPath, "audio", "", "Input speaker audio WAV path")
	cmd.Flags().StringVar(&outPath, "out", "", "Output voice .safetensors path")
	cmd.Flags().StringVar(&id, "id", "newsreader", "Voice ID used in tts.voice")
	cmd.Flags().StringVar(&license, "license", "unknown", "License label stored in the manifest")

	return cmd
}

// registerVoice upserts v into the configured manifest, storing its path
// relative to the manifest when possible.
func registerVoice(cfg config.Config, v tts.Voice) error {
	mgr, err := tts.OpenVoiceManager(cfg.Paths.VoiceManifest)
	if err != nil {
		return err
	}

	if abs, err := filepath.Abs(v.Path); err == nil {
		if base, err := filepath.Abs(filepath.Dir(cfg.Paths.VoiceManifest)); err == nil {
			if rel, err := filepath.Rel(base, abs); err == nil {
				v.Path = rel
			}
		}
	}

	if err := mgr.Upsert(v); err != nil {
		return err
	}
	return mgr.Save()
}

func newVoiceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List voices in the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			mgr, err := tts.OpenVoiceManager(cfg.Paths.VoiceManifest)
			if err != nil {
				return err
			}

			voices := mgr.ListVoices()
			rows := make([][]string, 0, len(voices))
			for _, v := range voices {
				status := "ok"
				if _, err := mgr.ResolvePath(v.ID); err != nil {
					status = "missing"
				}
				rows = append(rows, []string{v.ID, v.Path, v.License, status})
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Path", "License", "File"}, rows, nil))
			return nil
		},
	}
}
