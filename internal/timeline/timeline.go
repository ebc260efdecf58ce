// Package timeline places speech and sound assets on a single sample-accurate
// timeline and mixes them down.
package timeline

import (
	"fmt"

	"github.com/example/go-news-bulletin/internal/audio"
)

type Source int

const (
	SourceAsset Source = iota + 1
	SourceSpeech
	SourceBed
)

func (s Source) String() string {
	switch s {
	case SourceAsset:
		return "asset"
	case SourceSpeech:
		return "speech"
	case SourceBed:
		return "bed"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Placement is one clip at an absolute frame offset. Buffer already has
// gain and fades applied.
type Placement struct {
	// Segment is the script index, or -1 for the bed.
	Segment    int
	Source     Source
	Name       string
	StartFrame int
	GainDB     float64
	Buffer     audio.Buffer
}

func (p Placement) Frames() int   { return p.Buffer.Frames() }
func (p Placement) EndFrame() int { return p.StartFrame + p.Frames() }

// StartMS is the start offset in whole milliseconds, rounded down.
func (p Placement) StartMS() int64 { return p.Buffer.Format.MS(p.StartFrame) }

func (p Placement) DurationMS() int64 { return p.Buffer.Format.MS(p.Frames()) }

// Timeline is the finished, read-only layout of one bulletin.
type Timeline struct {
	Format     audio.Format
	Placements []Placement
	// Cursor is where the marker-driven fold ended, in frames.
	Cursor int
}

// Extent is the end of the furthest placement, in frames.
func (t *Timeline) Extent() int {
	end := 0
	for _, p := range t.Placements {
		end = max(end, p.EndFrame())
	}

	return end
}

func (t *Timeline) ExtentMS() int64 { return t.Format.MS(t.Extent()) }

// Mixdown sums every placement into one buffer spanning Extent frames and
// hard-limits the result to [-1, 1]. It returns how many samples were clipped.
func (t *Timeline) Mixdown() (audio.Buffer, int) {
	out := t.sum()

	return out, audio.Limit(out.Samples)
}

// MixdownLimited is Mixdown with a peak limiter at ceilingDB run over the
// sum before the hard clip, so only the limiter's attack can still clip.
func (t *Timeline) MixdownLimited(ceilingDB float64) (audio.Buffer, int, error) {
	out, err := audio.SoftLimit(t.sum(), ceilingDB)
	if err != nil {
		return audio.Buffer{}, 0, err
	}

	return out, audio.Limit(out.Samples), nil
}

func (t *Timeline) sum() audio.Buffer {
	out := audio.NewBuffer(t.Format, t.Extent())
	ch := t.Format.Channels

	for _, p := range t.Placements {
		base := p.StartFrame * ch
		for i, s := range p.Buffer.Samples {
			out.Samples[base+i] += s
		}
	}

	return out
}
