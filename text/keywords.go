package text

import "unicode/utf8"

// KeywordExtractor derives the keyword set of a query for keyword-overlap ranking.
type KeywordExtractor interface {
	Keywords(text string) []string
}

// Stop words never used as keywords
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "which": true, "how": true, "who": true,
	"的": true, "了": true, "是": true, "在": true, "和": true, "吗": true,
	"什么": true, "怎么": true, "哪些": true,
}

// StopWordExtractor tokenizes text, removes stop words and tokens of a
// single rune, and deduplicates the rest preserving first occurrence.
type StopWordExtractor struct {
	tokenizer Tokenizer
	minRunes  int
}

var _ KeywordExtractor = (*StopWordExtractor)(nil)

// NewKeywordExtractor creates a StopWordExtractor using tokenizer.
// A nil tokenizer selects DefaultTokenizer.
func NewKeywordExtractor(tokenizer Tokenizer) *StopWordExtractor {
	if tokenizer == nil {
		tokenizer = DefaultTokenizer{}
	}
	return &StopWordExtractor{tokenizer: tokenizer, minRunes: 2}
}

// Keywords implements KeywordExtractor.
func (e *StopWordExtractor) Keywords(text string) []string {
	tokens := e.tokenizer.Tokenize(text)
	seen := make(map[string]bool, len(tokens))
	keywords := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if stopWords[token] || utf8.RuneCountInString(token) < e.minRunes || seen[token] {
			continue
		}
		seen[token] = true
		keywords = append(keywords, token)
	}
	return keywords
}
