package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanAnswer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  Paris is the capital.  ", "Paris is the capital."},
		{"think block", "<think>the user asks\nabout Paris</think>\nParis.", "Paris."},
		{"only think", "<think>hmm</think>", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanAnswer(tt.in))
		})
	}
}
