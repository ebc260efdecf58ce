package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cwbudde/wav"
)

var (
	// ErrEmptyInput is returned for zero-length input.
	ErrEmptyInput = errors.New("empty audio input")
	// ErrNotWAV is returned when native decoding is asked for non-RIFF data.
	ErrNotWAV = errors.New("invalid WAV file")
	// ErrUnsupportedContainer is returned when data is not WAV and no transcoder is configured.
	ErrUnsupportedContainer = errors.New("unsupported audio container")
)

// IsWAV sniffs the RIFF/WAVE magic.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV decodes PCM WAV bytes of any rate, channel count and bit depth
// into float32 samples in [-1, 1].
func DecodeWAV(data []byte) (Buffer, error) {
	if len(data) == 0 {
		return Buffer{}, ErrEmptyInput
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Buffer{}, ErrNotWAV
	}

	f := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	if err := f.Validate(); err != nil {
		return Buffer{}, err
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return Buffer{}, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("reading PCM data: %w", err)
	}

	return Buffer{Format: f, Samples: buf.Data}, nil
}

// Decoder turns arbitrary audio bytes into a buffer in a fixed working format.
// WAV is decoded natively. Anything else, and WAV variants the native decoder
// rejects, goes through the transcoder when one is set.
type Decoder struct {
	Transcoder *Transcoder
}

// Decode decodes data and converts it to target.
func (d Decoder) Decode(ctx context.Context, data []byte, target Format) (Buffer, error) {
	if len(data) == 0 {
		return Buffer{}, ErrEmptyInput
	}

	var (
		buf Buffer
		err error
	)
	if IsWAV(data) {
		buf, err = DecodeWAV(data)
	} else {
		err = ErrUnsupportedContainer
	}

	if err != nil {
		if d.Transcoder == nil {
			return Buffer{}, err
		}
		wavData, terr := d.Transcoder.ToWAV(ctx, data, target)
		if terr != nil {
			return Buffer{}, errors.Join(err, terr)
		}
		buf, err = DecodeWAV(wavData)
		if err != nil {
			return Buffer{}, fmt.Errorf("decode transcoded audio: %w", err)
		}
	}

	out, err := Convert(buf, target)
	if err != nil {
		return Buffer{}, fmt.Errorf("convert to %s: %w", target, err)
	}

	return out, nil
}
