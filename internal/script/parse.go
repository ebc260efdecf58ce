// Package script turns bulletin script text into an ordered list of speech
// and SFX marker segments and checks the broadcast ordering rules.
package script

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/example/go-news-bulletin/internal/fault"
	"github.com/example/go-news-bulletin/internal/text"
)

var (
	bracketToken = regexp.MustCompile(`\[[^\[\]\n]*\]`)
	sfxToken     = regexp.MustCompile(`(?i)^\[\s*sfx\s*:\s*(.*?)\s*\]$`)
)

var markersByName = map[string]Marker{
	"NEWS_INTRO":    NewsIntro,
	"ARTICLE_START": ArticleStart,
	"ARTICLE_BREAK": ArticleBreak,
	"NEWS_OUTRO":    NewsOutro,
}

// Parser splits scripts. Unknown bracketed tokens are logged and kept as text.
type Parser struct {
	logger *slog.Logger
}

// NewParser returns a Parser logging to logger, or slog.Default when nil.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}

	return &Parser{logger: logger}
}

// Parse splits the script and validates its ordering.
func (p *Parser) Parse(script string) ([]Segment, error) {
	normalized, err := text.Normalize(script)
	if err != nil {
		return nil, fault.MalformedScript(RuleNoSpeech, fault.NoSegment, "script is empty")
	}

	segs := p.Split(normalized)
	if err := Validate(segs); err != nil {
		return nil, err
	}

	return segs, nil
}

// Split tokenises the script without checking ordering.
func (p *Parser) Split(script string) []Segment {
	script = text.NormalizeNewlines(script)

	var (
		segs    []Segment
		pending strings.Builder
	)
	flush := func() {
		if t := strings.TrimSpace(pending.String()); t != "" {
			segs = append(segs, Speech(t))
		}
		pending.Reset()
	}

	last := 0
	for _, loc := range bracketToken.FindAllStringIndex(script, -1) {
		token := script[loc[0]:loc[1]]
		m, ok := lookupMarker(token)
		if !ok {
			p.logger.Warn("unrecognized bracketed token kept as text",
				slog.String("token", token),
				slog.Int("offset", loc[0]),
			)
			continue
		}
		pending.WriteString(script[last:loc[0]])
		flush()
		segs = append(segs, SFX(m))
		last = loc[1]
	}
	pending.WriteString(script[last:])
	flush()

	return segs
}

func lookupMarker(token string) (Marker, bool) {
	sub := sfxToken.FindStringSubmatch(token)
	if sub == nil {
		return 0, false
	}
	m, ok := markersByName[markerName(sub[1])]

	return m, ok
}

// markerName folds any run of spaces, hyphens and underscores into a single
// underscore and upper-cases the result.
func markerName(raw string) string {
	words := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})

	return strings.ToUpper(strings.Join(words, "_"))
}

// Parse splits and validates script with the default logger.
func Parse(script string) ([]Segment, error) {
	return NewParser(nil).Parse(script)
}
