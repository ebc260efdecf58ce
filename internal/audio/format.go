package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Format describes interleaved float32 PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Validate reports whether the format can hold audio.
func (f Format) Validate() error {
	if f.SampleRate < 1 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 8 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}

	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz/%dch", f.SampleRate, f.Channels)
}

// FramesForMS converts a millisecond offset to a frame count, rounding to
// the nearest frame. Negative offsets yield negative frame counts.
func (f Format) FramesForMS(ms int64) int {
	return int(math.Round(float64(ms) * float64(f.SampleRate) / 1000))
}

// MS converts a frame count to whole milliseconds.
func (f Format) MS(frames int) int64 {
	if f.SampleRate == 0 {
		return 0
	}

	return int64(frames) * 1000 / int64(f.SampleRate)
}

// ErrFormatMismatch is returned when two buffers must share a format and do not.
var ErrFormatMismatch = errors.New("audio format mismatch")

// Buffer is decoded audio in a known format. Samples are interleaved by channel.
type Buffer struct {
	Format  Format
	Samples []float32
}

// NewBuffer allocates a silent buffer holding frames frames.
func NewBuffer(f Format, frames int) Buffer {
	if frames < 0 {
		frames = 0
	}

	return Buffer{Format: f, Samples: make([]float32, frames*f.Channels)}
}

// Frames returns the number of sample frames.
func (b Buffer) Frames() int {
	if b.Format.Channels == 0 {
		return 0
	}

	return len(b.Samples) / b.Format.Channels
}

// Duration returns the playback length.
func (b Buffer) Duration() time.Duration {
	if b.Format.SampleRate == 0 {
		return 0
	}

	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}

// Empty reports whether the buffer has no frames.
func (b Buffer) Empty() bool { return b.Frames() == 0 }

// Clone returns a deep copy.
func (b Buffer) Clone() Buffer {
	out := Buffer{Format: b.Format, Samples: make([]float32, len(b.Samples))}
	copy(out.Samples, b.Samples)

	return out
}

// Slice returns frames [from, to) sharing the underlying samples.
func (b Buffer) Slice(from, to int) Buffer {
	ch := b.Format.Channels
	n := b.Frames()
	from = max(0, min(from, n))
	to = max(from, min(to, n))

	return Buffer{Format: b.Format, Samples: b.Samples[from*ch : to*ch]}
}

// Append concatenates buffers of the same format.
func Append(dst Buffer, parts ...Buffer) (Buffer, error) {
	for _, p := range parts {
		if p.Empty() {
			continue
		}
		if dst.Format == (Format{}) {
			dst.Format = p.Format
		}
		if p.Format != dst.Format {
			return dst, fmt.Errorf("%w: %s vs %s", ErrFormatMismatch, p.Format, dst.Format)
		}
		dst.Samples = append(dst.Samples, p.Samples...)
	}

	return dst, nil
}
