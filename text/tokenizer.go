package text

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into terms. The same Tokenizer must be used for
// indexing and for querying a corpus.
type Tokenizer interface {
	Tokenize(text string) []string
}

// DefaultTokenizer splits on whitespace, lowercases, and trims surrounding
// punctuation. Runs of Han characters, which carry no whitespace word
// boundaries, are emitted as overlapping bigrams.
type DefaultTokenizer struct{}

var _ Tokenizer = DefaultTokenizer{}

const trimSet = ".,!?;:'\"-()[]{}<>«»“”‘’…"

// Tokenize implements Tokenizer.
func (DefaultTokenizer) Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || isWidePunct(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		cleaned := strings.ToLower(strings.Trim(field, trimSet))
		if cleaned == "" {
			continue
		}
		tokens = appendSegments(tokens, cleaned)
	}
	return tokens
}

// appendSegments splits a cleaned field into Han and non-Han segments.
func appendSegments(tokens []string, field string) []string {
	var (
		han   []rune
		other []rune
	)
	flushOther := func() {
		if s := strings.Trim(string(other), trimSet); s != "" {
			tokens = append(tokens, s)
		}
		other = other[:0]
	}
	flushHan := func() {
		tokens = appendBigrams(tokens, han)
		han = han[:0]
	}
	for _, r := range field {
		if unicode.Is(unicode.Han, r) {
			flushOther()
			han = append(han, r)
			continue
		}
		if len(han) > 0 {
			flushHan()
		}
		other = append(other, r)
	}
	flushOther()
	if len(han) > 0 {
		flushHan()
	}
	return tokens
}

func appendBigrams(tokens []string, run []rune) []string {
	if len(run) == 1 {
		return append(tokens, string(run))
	}
	for i := 0; i+1 < len(run); i++ {
		tokens = append(tokens, string(run[i:i+2]))
	}
	return tokens
}

// isWidePunct reports whether r is CJK or full-width punctuation.
func isWidePunct(r rune) bool {
	if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
		return false
	}
	return (r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF)
}
