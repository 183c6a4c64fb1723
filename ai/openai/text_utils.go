package openai

import (
	"regexp"
	"strings"
)

// thinkBlock matches reasoning traces emitted by some local chat models.
var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// cleanAnswer removes reasoning traces and trims surrounding whitespace.
func cleanAnswer(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
