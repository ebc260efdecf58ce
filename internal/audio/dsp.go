package audio

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/effects"
)

// Hook transforms a buffer. Hooks may modify samples in place.
type Hook func(Buffer) Buffer

// ApplyHooks runs hooks in order.
func ApplyHooks(b Buffer, hooks ...Hook) Buffer {
	out := b
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// Amplitude converts a gain in decibels to a linear factor: 10^(dB/20).
func Amplitude(db float64) float64 {
	return core.DBToLinear(db)
}

// DBFS converts a linear amplitude to decibels relative to full scale.
func DBFS(amp float64) float64 {
	if amp <= 0 {
		return math.Inf(-1)
	}

	return core.LinearToDB(amp)
}

// Gain scales every sample by the amplitude for db, in place.
func Gain(b Buffer, db float64) Buffer {
	if db == 0 {
		return b
	}
	g := Amplitude(db)
	for i, s := range b.Samples {
		b.Samples[i] = float32(float64(s) * g)
	}

	return b
}

// PeakNormalize scales samples so the peak reaches peakDBFS. Silence is left alone.
func PeakNormalize(b Buffer, peakDBFS float64) Buffer {
	peak := Peak(b.Samples)
	if peak == 0 {
		return b
	}
	scale := Amplitude(peakDBFS) / float64(peak)
	for i, s := range b.Samples {
		b.Samples[i] = float32(float64(s) * scale)
	}

	return b
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32
	for _, v := range samples {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}

	return peak
}

// DCBlock removes DC offset per channel with a one-pole high-pass around 20 Hz.
func DCBlock(b Buffer) Buffer {
	ch := b.Format.Channels
	if ch == 0 || b.Format.SampleRate == 0 {
		return b
	}
	r := 1 - 2*math.Pi*20/float64(b.Format.SampleRate)
	for c := 0; c < ch; c++ {
		var prevIn, prevOut float64
		for i := c; i < len(b.Samples); i += ch {
			x := float64(b.Samples[i])
			y := x - prevIn + r*prevOut
			prevIn, prevOut = x, y
			b.Samples[i] = float32(y)
		}
	}

	return b
}

// SoftLimit runs a peak limiter with its ceiling at ceilingDB over each
// channel, in place. Material that never reaches the ceiling is untouched.
func SoftLimit(b Buffer, ceilingDB float64) (Buffer, error) {
	ch := b.Format.Channels
	if ch == 0 || b.Format.SampleRate == 0 || len(b.Samples) == 0 {
		return b, nil
	}
	lim, err := effects.NewLimiter(float64(b.Format.SampleRate))
	if err != nil {
		return b, fmt.Errorf("limiter: %w", err)
	}
	if err := lim.SetThreshold(ceilingDB); err != nil {
		return b, fmt.Errorf("limiter: %w", err)
	}

	frames := b.Frames()
	work := make([]float64, frames)
	for c := 0; c < ch; c++ {
		lim.Reset()
		for f := range frames {
			work[f] = float64(b.Samples[f*ch+c])
		}
		lim.ProcessInPlace(work)
		for f := range frames {
			b.Samples[f*ch+c] = float32(work[f])
		}
	}

	return b, nil
}

// FadeIn applies a linear fade-in ramp over the first ms milliseconds, in place.
func FadeIn(b Buffer, ms float64) Buffer {
	n := rampFrames(b, ms)
	ch := b.Format.Channels
	for f := 0; f < n; f++ {
		g := float32(f) / float32(n)
		for c := 0; c < ch; c++ {
			b.Samples[f*ch+c] *= g
		}
	}

	return b
}

// FadeOut applies a linear fade-out ramp over the last ms milliseconds, in place.
// The final frame reaches zero.
func FadeOut(b Buffer, ms float64) Buffer {
	n := rampFrames(b, ms)
	ch := b.Format.Channels
	frames := b.Frames()
	for k := 0; k < n; k++ {
		f := frames - 1 - k
		g := float32(k) / float32(n)
		for c := 0; c < ch; c++ {
			b.Samples[f*ch+c] *= g
		}
	}

	return b
}

func rampFrames(b Buffer, ms float64) int {
	if ms <= 0 {
		return 0
	}
	n := int(ms / 1000 * float64(b.Format.SampleRate))

	return min(n, b.Frames())
}

// Limit hard-clips samples to [-1, 1] in place and returns how many were clipped.
func Limit(samples []float32) int {
	clipped := 0
	for i, s := range samples {
		switch {
		case s > 1:
			samples[i] = 1
			clipped++
		case s < -1:
			samples[i] = -1
			clipped++
		case s != s: // NaN
			samples[i] = 0
			clipped++
		}
	}

	return clipped
}
