package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// makeWAV builds a minimal valid WAV file from parameters for testing.
func makeWAV(sampleRate uint32, numChannels uint16, bitDepth uint16, numFrames int) []byte {
	blockAlign := numChannels * bitDepth / 8
	byteRate := sampleRate * uint32(blockAlign)
	dataSize := uint32(numFrames) * uint32(blockAlign)
	riffSize := 4 + (8 + 16) + (8 + dataSize)

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(riffSize))
	buf.WriteString("WAVE")

	// fmt chunk
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16)) // chunk size
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))  // PCM
	_ = binary.Write(buf, binary.LittleEndian, numChannels)
	_ = binary.Write(buf, binary.LittleEndian, sampleRate)
	_ = binary.Write(buf, binary.LittleEndian, byteRate)
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, bitDepth)

	// data chunk
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	for range numFrames * int(numChannels) {
		_ = binary.Write(buf, binary.LittleEndian, int16(0))
	}

	return buf.Bytes()
}

func TestDecodeWAV(t *testing.T) {
	t.Run("decodes 24kHz mono 16-bit WAV", func(t *testing.T) {
		b, err := DecodeWAV(makeWAV(24000, 1, 16, 100))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if b.Frames() != 100 {
			t.Errorf("got %d frames, want 100", b.Frames())
		}
		if b.Format != (Format{SampleRate: 24000, Channels: 1}) {
			t.Errorf("format = %v", b.Format)
		}
	})

	t.Run("keeps the source rate and channel count", func(t *testing.T) {
		b, err := DecodeWAV(makeWAV(44100, 2, 16, 10))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if b.Format != (Format{SampleRate: 44100, Channels: 2}) {
			t.Errorf("format = %v", b.Format)
		}
		if b.Frames() != 10 {
			t.Errorf("frames = %d, want 10", b.Frames())
		}
	})

	t.Run("rejects invalid WAV data", func(t *testing.T) {
		_, err := DecodeWAV([]byte("not a wav file"))
		if !errors.Is(err, ErrNotWAV) {
			t.Fatalf("err = %v, want ErrNotWAV", err)
		}
	})

	t.Run("rejects empty input", func(t *testing.T) {
		if _, err := DecodeWAV(nil); !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("err = %v, want ErrEmptyInput", err)
		}
	})
}

func TestEncodeWAV(t *testing.T) {
	t.Run("produces valid WAV with RIFF header", func(t *testing.T) {
		data, err := EncodeWAV(NewBuffer(Format{SampleRate: 24000, Channels: 1}, 100), 16)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(data) < 44 {
			t.Fatalf("WAV too short: %d bytes", len(data))
		}
		if !IsWAV(data) {
			t.Errorf("missing RIFF/WAVE header")
		}
	})

	t.Run("encodes sample rate channels and bit depth", func(t *testing.T) {
		data, err := EncodeWAV(NewBuffer(Format{SampleRate: 44100, Channels: 2}, 50), 16)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// Parse fmt chunk: channels at byte 22, sample rate at byte 24.
		if got := binary.LittleEndian.Uint32(data[24:28]); got != 44100 {
			t.Errorf("sample rate = %d, want 44100", got)
		}
		if got := binary.LittleEndian.Uint16(data[22:24]); got != 2 {
			t.Errorf("channels = %d, want 2", got)
		}
		if got := binary.LittleEndian.Uint16(data[34:36]); got != 16 {
			t.Errorf("bit depth = %d, want 16", got)
		}
	})

	t.Run("rejects unsupported bit depth", func(t *testing.T) {
		if _, err := EncodeWAV(NewBuffer(Format{SampleRate: 8000, Channels: 1}, 1), 12); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestDecodeEncodeRoundtrip(t *testing.T) {
	original := []float32{0.0, 0.5, -0.5, 1.0, -1.0, 0.25}
	in := Buffer{Format: Format{SampleRate: 22050, Channels: 2}, Samples: original}
	encoded, err := EncodeWAV(in, 16)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}

	decoded, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if decoded.Frames() != in.Frames() {
		t.Fatalf("roundtrip: got %d frames, want %d", decoded.Frames(), in.Frames())
	}

	// 16-bit quantization introduces error up to ~1/32768.
	const tolerance = 1.0 / 32768.0 * 2
	for i, want := range original {
		got := decoded.Samples[i]
		if math.Abs(float64(got-want)) > tolerance {
			t.Errorf("sample[%d] = %f, want %f (tolerance %f)", i, got, want, tolerance)
		}
	}
}

func TestDecoder(t *testing.T) {
	target := Format{SampleRate: 24000, Channels: 1}

	t.Run("converts WAV to the working format", func(t *testing.T) {
		b, err := Decoder{}.Decode(context.Background(), makeWAV(48000, 2, 16, 480), target)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if b.Format != target {
			t.Errorf("format = %v, want %v", b.Format, target)
		}
		if b.Frames() != 240 {
			t.Errorf("frames = %d, want 240", b.Frames())
		}
	})

	t.Run("non-WAV input without transcoder is unsupported", func(t *testing.T) {
		_, err := Decoder{}.Decode(context.Background(), []byte("ID3\x04 mp3 bytes"), target)
		if !errors.Is(err, ErrUnsupportedContainer) {
			t.Fatalf("err = %v, want ErrUnsupportedContainer", err)
		}
	})

	t.Run("non-WAV input goes through the transcoder", func(t *testing.T) {
		orig := runFFmpeg
		t.Cleanup(func() { runFFmpeg = orig })
		var gotArgs []string
		runFFmpeg = func(_ context.Context, _ string, args []string, _ []byte) ([]byte, error) {
			gotArgs = args
			return makeWAV(24000, 1, 16, 1200), nil
		}

		d := Decoder{Transcoder: &Transcoder{Binary: "ffmpeg"}}
		b, err := d.Decode(context.Background(), []byte("ID3 mp3 bytes"), target)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if b.Frames() != 1200 {
			t.Errorf("frames = %d, want 1200", b.Frames())
		}
		if gotArgs[len(gotArgs)-1] != "pipe:1" {
			t.Errorf("args = %v, want output to pipe:1", gotArgs)
		}
	})
}
