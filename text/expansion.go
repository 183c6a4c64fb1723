package text

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"
)

// DefaultSynonymsPerWord is the number of synonyms added per matched word.
const DefaultSynonymsPerWord = 2

// Expander rewrites a query before lexical and keyword ranking.
type Expander interface {
	Expand(query string) string
}

// SynonymExpander appends dictionary synonyms after each matched query word.
//
// Words are whitespace separated. For text without word boundaries a
// dictionary entry also matches when it occurs inside a word.
type SynonymExpander struct {
	synonyms map[string][]string
	keys     []string
	perWord  int
}

var _ Expander = (*SynonymExpander)(nil)

// NewSynonymExpander creates an expander over synonyms adding at most
// perWord synonyms for each matched word. perWord <= 0 selects
// DefaultSynonymsPerWord.
func NewSynonymExpander(synonyms map[string][]string, perWord int) *SynonymExpander {
	if perWord <= 0 {
		perWord = DefaultSynonymsPerWord
	}
	keys := make([]string, 0, len(synonyms))
	for k := range synonyms {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return &SynonymExpander{synonyms: synonyms, keys: keys, perWord: perWord}
}

// Expand implements Expander. The output is deduplicated and keeps the
// first occurrence of every word.
func (e *SynonymExpander) Expand(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return query
	}

	expanded := make([]string, 0, len(words))
	for _, word := range words {
		expanded = append(expanded, word)
		if syns, ok := e.lookup(word); ok {
			expanded = append(expanded, syns...)
			continue
		}
		for _, key := range e.keys {
			if key != word && strings.Contains(word, key) {
				expanded = append(expanded, e.limit(e.synonyms[key])...)
			}
		}
	}

	seen := make(map[string]bool, len(expanded))
	result := make([]string, 0, len(expanded))
	for _, w := range expanded {
		if !seen[w] {
			seen[w] = true
			result = append(result, w)
		}
	}
	return strings.Join(result, " ")
}

func (e *SynonymExpander) lookup(word string) ([]string, bool) {
	if syns, ok := e.synonyms[word]; ok {
		return e.limit(syns), true
	}
	if syns, ok := e.synonyms[strings.ToLower(word)]; ok {
		return e.limit(syns), true
	}
	return nil, false
}

func (e *SynonymExpander) limit(syns []string) []string {
	if len(syns) > e.perWord {
		return syns[:e.perWord]
	}
	return syns
}

// ParseSynonyms reads a synonym dictionary. Each line holds a word followed
// by its synonyms, separated by whitespace. Blank lines, lines starting with
// '#', and lines without synonyms are skipped.
func ParseSynonyms(r io.Reader) (map[string][]string, error) {
	synonyms := make(map[string][]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words := strings.Fields(line)
		if len(words) < 2 {
			continue
		}
		synonyms[words[0]] = words[1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return synonyms, nil
}

// LoadSynonyms reads a synonym dictionary file.
// A missing file yields an empty dictionary.
func LoadSynonyms(path string) (map[string][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string][]string{}, nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseSynonyms(f)
}
