package text

import (
	"errors"
	"strings"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// Normalize canonicalises line endings to \n, trims surrounding whitespace
// and rejects empty input.
func Normalize(s string) (string, error) {
	s = NormalizeNewlines(s)
	s = strings.TrimSpace(s)

	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}

// NormalizeNewlines converts CRLF and bare CR to LF.
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Speakable flattens a passage for a speech engine: line breaks and runs of
// whitespace become single spaces.
func Speakable(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
