package audio

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/resample"
)

// Convert re-channels and resamples b into f. The input is not modified.
func Convert(b Buffer, f Format) (Buffer, error) {
	if b.Format == f {
		return b, nil
	}
	if f.Channels < b.Format.Channels {
		return Resample(Rechannel(b, f.Channels), f.SampleRate)
	}

	r, err := Resample(b, f.SampleRate)
	if err != nil {
		return Buffer{}, err
	}

	return Rechannel(r, f.Channels), nil
}

// Rechannel up- or down-mixes to channels. Mono is duplicated when upmixing;
// downmixing to mono averages all channels. Other layouts keep the shared
// leading channels and fill extra ones with the source average.
func Rechannel(b Buffer, channels int) Buffer {
	src := b.Format.Channels
	if src == channels || src == 0 {
		return b
	}
	frames := b.Frames()
	out := NewBuffer(Format{SampleRate: b.Format.SampleRate, Channels: channels}, frames)
	for f := 0; f < frames; f++ {
		in := b.Samples[f*src : (f+1)*src]
		var sum float32
		for _, s := range in {
			sum += s
		}
		avg := sum / float32(src)
		for c := 0; c < channels; c++ {
			switch {
			case src == 1:
				out.Samples[f*channels+c] = in[0]
			case channels == 1 || c >= src:
				out.Samples[f*channels+c] = avg
			default:
				out.Samples[f*channels+c] = in[c]
			}
		}
	}

	return out
}

// Resample converts to rate with a band-limited polyphase filter, one channel
// at a time. The filter delay is removed, so the result is aligned with the
// input and holds frames*rate/srcRate frames, rounded.
func Resample(b Buffer, rate int) (Buffer, error) {
	srcRate := b.Format.SampleRate
	if srcRate == rate || srcRate == 0 {
		return b, nil
	}
	if rate <= 0 {
		return Buffer{}, fmt.Errorf("resample to %d Hz: rate must be positive", rate)
	}

	ch := b.Format.Channels
	frames := b.Frames()
	outFrames := int(math.Round(float64(frames) * float64(rate) / float64(srcRate)))
	out := NewBuffer(Format{SampleRate: rate, Channels: ch}, outFrames)
	if frames == 0 {
		return out, nil
	}

	rs, err := resample.NewForRates(float64(srcRate), float64(rate), resample.WithQuality(resample.QualityBalanced))
	if err != nil {
		return Buffer{}, fmt.Errorf("resample %d -> %d Hz: %w", srcRate, rate, err)
	}
	up, down := rs.Ratio()
	// Group delay of the prototype filter, in upsampled samples.
	delay := float64(len(rs.Prototype())-1) / 2
	skip := int(math.Round(delay / float64(down)))
	tail := make([]float64, int(math.Ceil(delay/float64(up)))+(down+up-1)/up+1)

	in := make([]float64, frames)
	for c := 0; c < ch; c++ {
		rs.Reset()
		for f := range frames {
			in[f] = float64(b.Samples[f*ch+c])
		}
		y := rs.Process(in)
		y = append(y, rs.Process(tail)...)
		for f := 0; f < outFrames && skip+f < len(y); f++ {
			out.Samples[f*ch+c] = float32(y[skip+f])
		}
	}

	return out, nil
}
