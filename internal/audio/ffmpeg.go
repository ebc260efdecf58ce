package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrFFmpegNotFound is returned when the ffmpeg executable cannot be located.
var ErrFFmpegNotFound = errors.New("ffmpeg executable not found")

// Transcoder shells out to ffmpeg for containers the native WAV codec does not handle.
type Transcoder struct {
	Binary  string
	Timeout time.Duration
}

// runFFmpeg is a seam so tests can stub the subprocess.
var runFFmpeg = func(ctx context.Context, binary string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = bytes.NewReader(stdin)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}

	return out.Bytes(), nil
}

func (t *Transcoder) binary() string {
	if t.Binary == "" {
		return "ffmpeg"
	}

	return t.Binary
}

// Available checks that the ffmpeg binary resolves on PATH.
func (t *Transcoder) Available() (string, error) {
	path, err := exec.LookPath(t.binary())
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrFFmpegNotFound, t.binary())
	}

	return path, nil
}

func (t *Transcoder) run(ctx context.Context, args []string, stdin []byte) ([]byte, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	base := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-i", "pipe:0"}
	out, err := runFFmpeg(ctx, t.binary(), append(base, args...), stdin)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrFFmpegNotFound, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ffmpeg: %w", ctxErr)
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("ffmpeg produced no output")
	}

	return out, nil
}

// ToWAV decodes any ffmpeg-readable input to 16-bit PCM WAV in format f.
func (t *Transcoder) ToWAV(ctx context.Context, data []byte, f Format) ([]byte, error) {
	args := []string{
		"-f", "wav",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
		"pipe:1",
	}

	return t.run(ctx, args, data)
}

// Container codec settings for ffmpeg output.
var containerArgs = map[string][]string{
	"mp3":  {"-f", "mp3", "-codec:a", "libmp3lame"},
	"ogg":  {"-f", "ogg", "-codec:a", "libvorbis"},
	"opus": {"-f", "ogg", "-codec:a", "libopus"},
	"flac": {"-f", "flac", "-codec:a", "flac"},
}

// Containers lists the container names FromWAV accepts.
func Containers() []string {
	return []string{"flac", "mp3", "ogg", "opus"}
}

// FromWAV encodes WAV input into container. bitrate (for example "128k") is
// ignored for lossless containers.
func (t *Transcoder) FromWAV(ctx context.Context, wavData []byte, container, bitrate string) ([]byte, error) {
	codec, ok := containerArgs[container]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContainer, container)
	}
	args := append([]string{}, codec...)
	if bitrate != "" && container != "flac" {
		args = append(args, "-b:a", bitrate)
	}
	args = append(args, "pipe:1")

	return t.run(ctx, args, wavData)
}
