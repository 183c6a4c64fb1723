package text

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTokenizer(t *testing.T) {
	tok := DefaultTokenizer{}

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"ascii", "Hello, World! (again)", []string{"hello", "world", "again"}},
		{"sentence ending", "A.", []string{"a"}},
		{"keeps inner punctuation", "pi is 3.14, don't round", []string{"pi", "is", "3.14", "don't", "round"}},
		{"han bigrams", "今天天气", []string{"今天", "天天", "天气"}},
		{"han single rune", "好", []string{"好"}},
		{"wide punctuation separates", "天气。很好！", []string{"天气", "很好"}},
		{"mixed scripts", "GPU显卡", []string{"gpu", "显卡"}},
		{"empty", "   ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.Tokenize(tt.input))
		})
	}
}

func TestStopWordExtractor(t *testing.T) {
	ex := NewKeywordExtractor(nil)

	t.Run("removes stop words and short tokens", func(t *testing.T) {
		got := ex.Keywords("What is the capital of a big country?")
		assert.Equal(t, []string{"capital", "big", "country"}, got)
	})

	t.Run("deduplicates", func(t *testing.T) {
		assert.Equal(t, []string{"go", "gopher"}, ex.Keywords("Go go GOPHER gopher"))
	})

	t.Run("single letter query has no keywords", func(t *testing.T) {
		assert.Empty(t, ex.Keywords("A"))
	})
}

func TestParseSynonyms(t *testing.T) {
	input := `# comment line
car automobile vehicle motorcar

lonely
fast quick rapid
`
	syns, err := ParseSynonyms(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"car":  {"automobile", "vehicle", "motorcar"},
		"fast": {"quick", "rapid"},
	}, syns)
}

func TestLoadSynonyms(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		syns, err := LoadSynonyms(filepath.Join(t.TempDir(), "nope.txt"))
		require.NoError(t, err)
		assert.Empty(t, syns)
	})

	t.Run("existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "keywords.txt")
		require.NoError(t, os.WriteFile(path, []byte("老师 教师 导师\n"), 0o644))
		syns, err := LoadSynonyms(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"教师", "导师"}, syns["老师"])
	})
}

func TestSynonymExpander(t *testing.T) {
	exp := NewSynonymExpander(map[string][]string{
		"car":  {"automobile", "vehicle", "motorcar"},
		"fast": {"quick", "car"},
		"天气":   {"气候", "气象"},
	}, 0)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"no match", "hello world", "hello world"},
		{"limits synonyms", "car", "car automobile vehicle"},
		{"deduplicates preserving order", "fast car", "fast quick car automobile vehicle"},
		{"case insensitive lookup", "Car", "Car automobile vehicle"},
		{"substring match without boundaries", "今天天气好", "今天天气好 气候 气象"},
		{"empty query", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exp.Expand(tt.query))
		})
	}
}
