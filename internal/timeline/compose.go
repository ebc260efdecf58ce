package timeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-news-bulletin/internal/assets"
	"github.com/example/go-news-bulletin/internal/audio"
	"github.com/example/go-news-bulletin/internal/config"
	"github.com/example/go-news-bulletin/internal/fault"
	"github.com/example/go-news-bulletin/internal/script"
	"github.com/example/go-news-bulletin/internal/speech"
	"github.com/example/go-news-bulletin/internal/text"
)

// Compositor folds ordered segments into a Timeline. It holds no state
// between calls; identical input gives an identical Timeline.
type Compositor struct {
	logger *slog.Logger
}

func NewCompositor(logger *slog.Logger) *Compositor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Compositor{logger: logger}
}

// Compose walks segs left to right with a single cursor t:
//
//   - an SFX marker starts at max(0, t+offset). With offset >= 0 the cursor
//     moves to the end of the asset. With a negative offset the asset plays
//     under what follows: the cursor only moves past the part of the asset
//     that extends beyond the lead it was pulled back by, and never moves
//     backwards.
//   - a speech clip starts at t and moves t to its end. Blank speech is skipped.
//
// The bed, when the set holds one, is placed after the fold. See placeBed.
func (c *Compositor) Compose(segs []script.Segment, set *assets.Set, clips map[int]speech.Clip) (*Timeline, error) {
	f := set.Format()
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("working format: %w", err)
	}

	tl := &Timeline{Format: f}
	t := 0

	for i, seg := range segs {
		if seg.IsSpeech() {
			if text.Speakable(seg.Text) == "" {
				continue
			}
			clip, ok := clips[i]
			if !ok || clip.Buffer.Empty() {
				return nil, fault.SpeechSynthesis(i, errors.New("no rendered audio for segment"))
			}
			if clip.Buffer.Format != f {
				return nil, fmt.Errorf("segment %d: %w: %s vs %s", i, audio.ErrFormatMismatch, clip.Buffer.Format, f)
			}

			buf := audio.Gain(clip.Buffer.Clone(), clip.GainDB)
			tl.Placements = append(tl.Placements, Placement{
				Segment:    i,
				Source:     SourceSpeech,
				Name:       "speech",
				StartFrame: t,
				GainDB:     clip.GainDB,
				Buffer:     buf,
			})
			t += buf.Frames()

			continue
		}

		name := seg.Marker.Asset()
		a, ok := set.Get(name)
		if !ok || name == "" {
			return nil, fault.UnresolvedAsset(i, name)
		}

		buf := shape(a.Buffer.Clone(), a.AssetConfig)
		p := Placement{Segment: i, Source: SourceAsset, Name: name, GainDB: a.GainDB, Buffer: buf}
		p.StartFrame, t = advance(t, f.FramesForMS(a.OffsetMS), buf.Frames())
		tl.Placements = append(tl.Placements, p)

		c.logger.Debug("sfx placed",
			slog.Int("segment", i),
			slog.String("asset", name),
			slog.Int64("start_ms", p.StartMS()),
			slog.Int64("duration_ms", p.DurationMS()),
		)
	}

	tl.Cursor = t

	if bed, ok := set.Bed(); ok {
		if p, ok := placeBed(bed, t, f); ok {
			tl.Placements = append(tl.Placements, p)
		} else {
			c.logger.Warn("bed skipped: nothing to cover", slog.Int64("offset_ms", bed.OffsetMS))
		}
	}

	return tl, nil
}

// advance returns the start frame of an asset of length frames placed at
// cursor t with offset, and the cursor after it.
func advance(t, offset, frames int) (start, next int) {
	start = max(0, t+offset)
	if offset >= 0 {
		return start, start + frames
	}

	lead := t - start
	return start, max(t, start+frames-lead)
}

// placeBed lays the bed over [start, end) where end is the final cursor.
// A non-negative offset counts from zero; a negative one counts back from
// end. SpanMS, when set, shortens the covered span. A looping bed repeats to
// fill the span, otherwise it plays once and stops early if shorter.
func placeBed(bed *assets.Asset, end int, f audio.Format) (Placement, bool) {
	offset := f.FramesForMS(bed.OffsetMS)

	start := offset
	if offset < 0 {
		start = max(0, end+offset)
	}

	span := end - start
	if bed.SpanMS > 0 {
		span = min(span, f.FramesForMS(bed.SpanMS))
	}
	if span <= 0 || bed.Buffer.Empty() {
		return Placement{}, false
	}

	var buf audio.Buffer
	if bed.Loop {
		buf = repeat(bed.Buffer, span)
	} else {
		buf = bed.Buffer.Slice(0, span).Clone()
	}

	return Placement{
		Segment:    fault.NoSegment,
		Source:     SourceBed,
		Name:       bed.Name,
		StartFrame: start,
		GainDB:     bed.GainDB,
		Buffer:     shape(buf, bed.AssetConfig),
	}, true
}

// repeat tiles src until it is exactly frames long.
func repeat(src audio.Buffer, frames int) audio.Buffer {
	out := audio.NewBuffer(src.Format, frames)
	for off := 0; off < len(out.Samples); off += len(src.Samples) {
		copy(out.Samples[off:], src.Samples)
	}

	return out
}

// shape applies gain then fades to a buffer the caller owns.
func shape(b audio.Buffer, cfg config.AssetConfig) audio.Buffer {
	b = audio.Gain(b, cfg.GainDB)
	b = audio.FadeIn(b, float64(cfg.FadeInMS))

	return audio.FadeOut(b, float64(cfg.FadeOutMS))
}
