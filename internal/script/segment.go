package script

import (
	"fmt"

	"github.com/example/go-news-bulletin/internal/config"
)

// Kind distinguishes spoken text from sound-effect markers.
type Kind int

const (
	KindSpeech Kind = iota + 1
	KindMarker
)

// Marker is one of the fixed SFX cues a bulletin script may contain.
type Marker int

const (
	NewsIntro Marker = iota + 1
	ArticleStart
	ArticleBreak
	NewsOutro
)

var markerNames = map[Marker]string{
	NewsIntro:    "NEWS_INTRO",
	ArticleStart: "ARTICLE_START",
	ArticleBreak: "ARTICLE_BREAK",
	NewsOutro:    "NEWS_OUTRO",
}

var markerAssets = map[Marker]string{
	NewsIntro:    config.AssetIntro,
	ArticleStart: config.AssetFirst,
	ArticleBreak: config.AssetBreak,
	NewsOutro:    config.AssetOutro,
}

func (m Marker) String() string {
	if name, ok := markerNames[m]; ok {
		return name
	}

	return fmt.Sprintf("MARKER(%d)", int(m))
}

// Asset returns the mix plan asset name the marker plays.
func (m Marker) Asset() string {
	return markerAssets[m]
}

// Segment is one element of a parsed script: either Speech with Text or an
// SFX Marker.
type Segment struct {
	Kind   Kind
	Text   string
	Marker Marker
}

// Speech returns a spoken segment.
func Speech(text string) Segment {
	return Segment{Kind: KindSpeech, Text: text}
}

// SFX returns a marker segment.
func SFX(m Marker) Segment {
	return Segment{Kind: KindMarker, Marker: m}
}

func (s Segment) IsSpeech() bool { return s.Kind == KindSpeech }

func (s Segment) Is(m Marker) bool { return s.Kind == KindMarker && s.Marker == m }

func (s Segment) String() string {
	if s.Kind == KindMarker {
		return "[SFX: " + s.Marker.String() + "]"
	}

	return fmt.Sprintf("speech(%d chars)", len(s.Text))
}

// SpeechCount returns how many speech segments segs holds.
func SpeechCount(segs []Segment) int {
	n := 0
	for _, s := range segs {
		if s.IsSpeech() {
			n++
		}
	}

	return n
}
