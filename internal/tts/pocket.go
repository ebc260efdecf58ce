package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

const defaultPocketExecutable = "pocket-tts"

type PocketOptions struct {
	ExecutablePath string
	ConfigPath     string
	Quiet          bool
	Voice          string
	// Voices resolves manifest IDs to voice files. Nil passes voices through.
	Voices *VoiceManager
	Logger *slog.Logger
}

// Pocket shells out to the pocket-tts CLI, streaming text on stdin and reading
// WAV from stdout.
type Pocket struct {
	opts   PocketOptions
	logger *slog.Logger
}

// runPocketCLI is swapped in tests.
var runPocketCLI = func(ctx context.Context, exe string, args []string, text string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.Bytes(), stderr.Bytes(), err
}

func NewPocket(opts PocketOptions) *Pocket {
	if opts.ExecutablePath == "" {
		opts.ExecutablePath = defaultPocketExecutable
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pocket{opts: opts, logger: logger}
}

func (p *Pocket) Name() string { return "pocket" }

func (p *Pocket) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, Permanent(ErrEmptyText)
	}

	voice, err := p.opts.Voices.Resolve(firstNonEmpty(req.Voice, p.opts.Voice))
	if err != nil {
		return nil, Permanent(err)
	}

	args := pocketArgs(p.opts, voice)
	p.logger.Debug("pocket-tts synthesize", "chars", len(req.Text), "voice", voice)

	out, stderr, err := runPocketCLI(ctx, p.opts.ExecutablePath, args, req.Text)
	if err != nil {
		return nil, mapPocketError(err, stderr)
	}
	if len(out) == 0 {
		return nil, errors.New("pocket-tts: empty audio output")
	}

	return out, nil
}

func pocketArgs(opts PocketOptions, voice string) []string {
	args := []string{"generate", "--text", "-", "--output-path", "-"}
	if voice != "" {
		args = append(args, "--voice", voice)
	}
	if opts.ConfigPath != "" {
		args = append(args, "--config", opts.ConfigPath)
	}
	if opts.Quiet {
		args = append(args, "--quiet")
	}

	return args
}

// mapPocketError treats a missing executable as permanent; non-zero exits
// are retried since the CLI also fails on transient model load errors.
func mapPocketError(err error, stderr []byte) error {
	if errors.Is(err, exec.ErrNotFound) {
		return Permanent(fmt.Errorf("pocket-tts executable not found; set tts.pocket.cli_path: %w", err))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := strings.TrimSpace(string(stderr))
		if len(detail) > maxErrorBody {
			detail = detail[len(detail)-maxErrorBody:]
		}
		if detail != "" {
			return fmt.Errorf("pocket-tts exited with code %d: %s: %w", exitErr.ExitCode(), detail, err)
		}
		return fmt.Errorf("pocket-tts exited with code %d: %w", exitErr.ExitCode(), err)
	}

	return fmt.Errorf("pocket-tts: %w", err)
}
