// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package chunker splits raw text into ordered chunks for ingestion.
//
// Two segmentation modes are supported:
//
//   - ModeFixed accumulates whole sentences into chunks of at most size
//     characters and seeds each new chunk with a whole-sentence suffix of
//     the previous one, at most overlap characters long.
//   - ModeParagraph emits one chunk per paragraph, keeping the blank-line
//     separator that follows it.
//
// Lengths are measured in runes. Split is a pure function and safe for
// concurrent use.
package chunker

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/ragfuse/core"
)

// Mode selects the segmentation strategy.
type Mode string

const (
	// ModeFixed splits on sentence boundaries into size-bounded chunks.
	ModeFixed Mode = "fixed"
	// ModeParagraph splits on runs of blank lines.
	ModeParagraph Mode = "paragraph"
)

// ParseMode converts a mode name into a Mode.
// An empty name selects ModeFixed.
func ParseMode(name string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(name))) {
	case "", ModeFixed:
		return ModeFixed, nil
	case ModeParagraph:
		return ModeParagraph, nil
	default:
		return "", fmt.Errorf("%w: %w: %q", core.ErrInput, core.ErrInvalidMode, name)
	}
}

var paragraphBreak = regexp.MustCompile(`\n(?:[ \t]*\n)+`)

// Split divides text into chunks according to mode.
// The result may be empty when text holds only whitespace.
func Split(text string, size, overlap int, mode Mode) ([]string, error) {
	if mode != ModeFixed && mode != ModeParagraph {
		return nil, fmt.Errorf("%w: %w: %q", core.ErrInput, core.ErrInvalidMode, mode)
	}
	if err := core.ValidateChunkParams(size, overlap); err != nil {
		return nil, err
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	if mode == ModeParagraph {
		return splitParagraphs(text), nil
	}
	return splitFixed(text, size, overlap), nil
}

func splitParagraphs(text string) []string {
	text = strings.TrimSpace(text)
	chunks := make([]string, 0)
	start := 0
	for _, loc := range paragraphBreak.FindAllStringIndex(text, -1) {
		if p := strings.TrimSpace(text[start:loc[0]]); p != "" {
			chunks = append(chunks, p+text[loc[0]:loc[1]])
		}
		start = loc[1]
	}
	if p := strings.TrimSpace(text[start:]); p != "" {
		chunks = append(chunks, p)
	}
	return chunks
}

func splitFixed(text string, size, overlap int) []string {
	var (
		chunks     []string
		current    []string
		currentLen int
	)
	for _, sentence := range Sentences(text) {
		n := utf8.RuneCountInString(sentence)
		if currentLen+n > size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, ""))
			current = overlapSuffix(current, overlap)
			currentLen = runeLen(current)
		}
		current = append(current, sentence)
		currentLen += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, ""))
	}
	return compact(chunks)
}

// Sentences splits text into sentence-like units. Units end at 。！？ or a
// newline, or at ASCII . ! ? followed by whitespace or the end of text.
// Terminal punctuation stays with its sentence; concatenating the result
// yields text unchanged.
func Sentences(text string) []string {
	runes := []rune(text)
	out := make([]string, 0)
	start := 0
	for i := range runes {
		if isTerminal(runes, i) {
			out = append(out, string(runes[start:i+1]))
			start = i + 1
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isTerminal(runes []rune, i int) bool {
	switch runes[i] {
	case '。', '！', '？', '\n':
		return true
	case '.', '!', '?':
		return i+1 == len(runes) || unicode.IsSpace(runes[i+1])
	}
	return false
}

// overlapSuffix returns the whole-sentence suffix carried into the next chunk.
// At least one sentence is kept when overlap is positive.
func overlapSuffix(sentences []string, overlap int) []string {
	if overlap == 0 {
		return nil
	}
	if runeLen(sentences) <= overlap {
		return slices.Clone(sentences)
	}
	total := 0
	start := len(sentences)
	for i := len(sentences) - 1; i >= 0; i-- {
		n := utf8.RuneCountInString(sentences[i])
		if total+n > overlap && start < len(sentences) {
			break
		}
		total += n
		start = i
	}
	return slices.Clone(sentences[start:])
}

func runeLen(parts []string) int {
	n := 0
	for _, p := range parts {
		n += utf8.RuneCountInString(p)
	}
	return n
}

func compact(chunks []string) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
