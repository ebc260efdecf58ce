package testutil

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/example/go-news-bulletin/internal/audio"
)

// AssertValidWAV checks that data is a PCM WAV file in format f at bitDepth
// with at least one frame.
func AssertValidWAV(tb testing.TB, data []byte, f audio.Format, bitDepth int) {
	tb.Helper()

	if len(data) < 44 {
		tb.Fatalf("WAV data too short: %d bytes", len(data))
	}

	if string(data[0:4]) != "RIFF" {
		tb.Fatalf("WAV: missing RIFF header (got %q)", string(data[0:4]))
	}

	if string(data[8:12]) != "WAVE" {
		tb.Fatalf("WAV: missing WAVE marker (got %q)", string(data[8:12]))
	}

	if string(data[12:16]) != "fmt " {
		tb.Fatalf("WAV: missing fmt chunk (got %q)", string(data[12:16]))
	}

	if audioFmt := binary.LittleEndian.Uint16(data[20:22]); audioFmt != 1 {
		tb.Fatalf("WAV: expected PCM format (1), got %d", audioFmt)
	}

	if channels := binary.LittleEndian.Uint16(data[22:24]); int(channels) != f.Channels {
		tb.Fatalf("WAV: expected %d channels, got %d", f.Channels, channels)
	}

	if sampleRate := binary.LittleEndian.Uint32(data[24:28]); int(sampleRate) != f.SampleRate {
		tb.Fatalf("WAV: expected sample rate %d, got %d", f.SampleRate, sampleRate)
	}

	if depth := binary.LittleEndian.Uint16(data[34:36]); int(depth) != bitDepth {
		tb.Fatalf("WAV: expected %d-bit depth, got %d", bitDepth, depth)
	}

	dataSize, err := findDataChunkSize(data)
	if err != nil {
		tb.Fatalf("WAV: %v", err)
	}

	if dataSize == 0 {
		tb.Fatal("WAV: data chunk contains zero samples")
	}
}

// AssertWAVDurationApprox asserts that the WAV duration, derived from the
// header format and data chunk size, lies within [minSec, maxSec].
func AssertWAVDurationApprox(tb testing.TB, data []byte, minSec, maxSec float64) {
	tb.Helper()

	d, err := WAVDuration(data)
	if err != nil {
		tb.Fatalf("WAV duration check: %v", err)
	}
	if d < minSec || d > maxSec {
		tb.Fatalf("WAV duration %.3fs out of expected range [%.3fs, %.3fs]", d, minSec, maxSec)
	}
}

// WAVDuration returns the playback length in seconds described by the header.
func WAVDuration(data []byte) (float64, error) {
	if len(data) < 44 {
		return 0, errors.New("WAV data too short")
	}
	channels := binary.LittleEndian.Uint16(data[22:24])
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	bitDepth := binary.LittleEndian.Uint16(data[34:36])
	if channels == 0 || sampleRate == 0 || bitDepth == 0 {
		return 0, errors.New("WAV header has zero format fields")
	}

	dataSize, err := findDataChunkSize(data)
	if err != nil {
		return 0, err
	}
	frames := float64(dataSize) / float64(int(channels)*int(bitDepth)/8)

	return math.Round(frames) / float64(sampleRate), nil
}

// findDataChunkSize walks the WAV chunk list to locate the "data" sub-chunk
// and returns its size in bytes.
func findDataChunkSize(data []byte) (uint32, error) {
	// Start after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])

		size := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		if id == "data" {
			return size, nil
		}

		offset += 8 + int(size)
		// Pad to even boundary.
		if size%2 != 0 {
			offset++
		}
	}

	return 0, errors.New("data chunk not found in WAV")
}
