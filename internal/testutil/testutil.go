// Package testutil provides shared fixtures and skip helpers for tests.
//
// Skip helpers call t.Skip with a human-readable reason when an external
// prerequisite is absent, so integration tests stay runnable in partial
// environments:
//
//	func TestTranscode(t *testing.T) {
//	    testutil.RequireFFmpeg(t)
//	    ...
//	}
package testutil

import (
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/example/go-news-bulletin/internal/audio"
)

// RequireFFmpeg skips the test if ffmpeg is not on PATH (or at BULLETIN_FFMPEG_PATH).
func RequireFFmpeg(tb testing.TB) {
	tb.Helper()

	exe := os.Getenv("BULLETIN_FFMPEG_PATH")
	if exe == "" {
		exe = "ffmpeg"
	}

	if _, err := exec.LookPath(exe); err != nil {
		tb.Skipf("ffmpeg not available (%q not in PATH); set BULLETIN_FFMPEG_PATH to override", exe)
	}
}

// RequirePocketTTS skips the test if the pocket-tts binary cannot be found.
func RequirePocketTTS(tb testing.TB) {
	tb.Helper()

	exe := os.Getenv("BULLETIN_TTS_POCKET_CLI_PATH")
	if exe == "" {
		exe = "pocket-tts"
	}

	if _, err := exec.LookPath(exe); err != nil {
		tb.Skipf("pocket-tts binary not available (%q not in PATH); set BULLETIN_TTS_POCKET_CLI_PATH to override", exe)
	}
}

// Tone returns ms milliseconds of a sine at freq Hz and peak amp in format f.
func Tone(f audio.Format, ms int64, freq, amp float64) audio.Buffer {
	b := audio.NewBuffer(f, f.FramesForMS(ms))
	for i := 0; i < b.Frames(); i++ {
		v := float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(f.SampleRate)))
		for c := 0; c < f.Channels; c++ {
			b.Samples[i*f.Channels+c] = v
		}
	}

	return b
}

// Constant returns ms milliseconds where every sample equals v.
func Constant(f audio.Format, ms int64, v float32) audio.Buffer {
	b := audio.NewBuffer(f, f.FramesForMS(ms))
	for i := range b.Samples {
		b.Samples[i] = v
	}

	return b
}

// WAV encodes b as 16-bit WAV or fails the test.
func WAV(tb testing.TB, b audio.Buffer) []byte {
	tb.Helper()

	data, err := audio.EncodeWAV(b, 16)
	if err != nil {
		tb.Fatalf("encode fixture WAV: %v", err)
	}

	return data
}

// WriteWAV writes b as a 16-bit WAV file named name under dir and returns its path.
func WriteWAV(tb testing.TB, dir, name string, b audio.Buffer) string {
	tb.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, WAV(tb, b), 0o644); err != nil {
		tb.Fatalf("write fixture %s: %v", path, err)
	}

	return path
}
