package agent

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minSentenceRunes keeps very short fragments ("Dạ.", "OK!") attached to
// the following sentence so each synthesis request has some prosody to work with.
const minSentenceRunes = 8

// sentenceBuffer accumulates streamed LLM text and cuts it at sentence
// boundaries for synthesis.
type sentenceBuffer struct {
	buf strings.Builder
}

// Add appends text and returns the sentences it completed.
func (b *sentenceBuffer) Add(text string) []string {
	b.buf.WriteString(text)
	content := b.buf.String()

	var sentences []string
	lastEnd := 0
	for i, r := range content {
		if !isTerminal(r) {
			continue
		}
		end := i + utf8.RuneLen(r)
		if end >= len(content) {
			continue
		}
		if next, _ := utf8.DecodeRuneInString(content[end:]); !unicode.IsSpace(next) {
			continue
		}
		sentence := strings.TrimSpace(content[lastEnd:end])
		if utf8.RuneCountInString(sentence) < minSentenceRunes {
			continue
		}
		sentences = append(sentences, sentence)
		lastEnd = end
	}

	if lastEnd > 0 {
		b.buf.Reset()
		b.buf.WriteString(content[lastEnd:])
	}
	return sentences
}

// Flush returns whatever is left and clears the buffer.
func (b *sentenceBuffer) Flush() string {
	rest := strings.TrimSpace(b.buf.String())
	b.buf.Reset()
	return rest
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}
