package text

import "strings"

// ChunkBySentence splits text into chunks of at most maxChars bytes, cutting at
// sentence boundaries (., !, ?) and packing consecutive sentences together.
// A sentence longer than maxChars is cut at word boundaries; a single word
// longer than maxChars is kept whole. maxChars <= 0 disables splitting.
func ChunkBySentence(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if maxChars <= 0 || len(text) <= maxChars {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var pieces []string
	for _, s := range splitSentences(text) {
		if len(s) > maxChars {
			pieces = append(pieces, splitWords(s, maxChars)...)
			continue
		}
		pieces = append(pieces, s)
	}

	return pack(pieces, maxChars)
}

// pack joins pieces with single spaces while staying within maxChars.
func pack(pieces []string, maxChars int) []string {
	var chunks []string
	var current strings.Builder

	for _, p := range pieces {
		if current.Len() == 0 {
			current.WriteString(p)
			continue
		}
		if current.Len()+1+len(p) > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(p)
		} else {
			current.WriteByte(' ')
			current.WriteString(p)
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

func splitWords(sentence string, maxChars int) []string {
	return pack(strings.Fields(sentence), maxChars)
}

// splitSentences splits on sentence-ending punctuation, keeping the
// terminator (and any run of terminators such as "?!" or "...") attached.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		for i+1 < len(runes) && isTerminator(runes[i+1]) {
			i++
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}

	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
