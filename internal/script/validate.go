package script

import (
	"fmt"

	"github.com/example/go-news-bulletin/internal/fault"
)

// Ordering rules a bulletin script must satisfy.
const (
	RuleNoSpeech              = "no-speech"
	RuleIntroFirst            = "intro-first"
	RuleSingleIntro           = "single-intro"
	RuleSingleArticleStart    = "single-article-start"
	RuleArticleStartPlacement = "article-start-placement"
	RuleBreakPlacement        = "break-placement"
	RuleSingleOutro           = "single-outro"
	RuleOutroLast             = "outro-last"
)

// Validate reports the first ordering rule segs violates as a
// MalformedScript fault. Scripts are never repaired.
func Validate(segs []Segment) error {
	if len(segs) == 0 {
		return fault.MalformedScript(RuleNoSpeech, fault.NoSegment, "script has no segments")
	}
	if !segs[0].Is(NewsIntro) {
		return fault.MalformedScript(RuleIntroFirst, 0, fmt.Sprintf("script starts with %s, want [SFX: NEWS_INTRO]", segs[0]))
	}
	if i := nth(segs, NewsIntro, 2); i >= 0 {
		return fault.MalformedScript(RuleSingleIntro, i, "second NEWS_INTRO marker")
	}

	firstSpeech := -1
	for i, s := range segs {
		if s.IsSpeech() {
			firstSpeech = i
			break
		}
	}
	if firstSpeech < 0 {
		return fault.MalformedScript(RuleNoSpeech, fault.NoSegment, "script contains no spoken text")
	}

	start := nth(segs, ArticleStart, 1)
	if start < 0 {
		return fault.MalformedScript(RuleArticleStartPlacement, firstSpeech, "missing ARTICLE_START before the first spoken segment")
	}
	if i := nth(segs, ArticleStart, 2); i >= 0 {
		return fault.MalformedScript(RuleSingleArticleStart, i, "second ARTICLE_START marker")
	}
	if start != firstSpeech-1 {
		return fault.MalformedScript(RuleArticleStartPlacement, start, "ARTICLE_START must come immediately before the first spoken segment")
	}

	for i, s := range segs {
		if !s.Is(ArticleBreak) {
			continue
		}
		if i == 0 || i == len(segs)-1 || !segs[i-1].IsSpeech() || !segs[i+1].IsSpeech() {
			return fault.MalformedScript(RuleBreakPlacement, i, "ARTICLE_BREAK must sit between two spoken segments")
		}
	}

	outro := nth(segs, NewsOutro, 1)
	if outro < 0 {
		return fault.MalformedScript(RuleOutroLast, len(segs)-1, "missing NEWS_OUTRO at the end of the script")
	}
	if i := nth(segs, NewsOutro, 2); i >= 0 {
		return fault.MalformedScript(RuleSingleOutro, i, "second NEWS_OUTRO marker")
	}
	if outro != len(segs)-1 {
		return fault.MalformedScript(RuleOutroLast, outro, "NEWS_OUTRO must be the last segment")
	}

	return nil
}

// nth returns the index of the n-th (1-based) occurrence of m, or -1.
func nth(segs []Segment, m Marker, n int) int {
	seen := 0
	for i, s := range segs {
		if s.Is(m) {
			seen++
			if seen == n {
				return i
			}
		}
	}

	return -1
}
