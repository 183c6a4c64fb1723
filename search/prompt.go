package search

import (
	"strings"

	"github.com/poiesic/ragfuse/core"
)

// BuildPrompt renders the generation prompt for query with the contents of
// docs joined by newlines as context.
func BuildPrompt(query string, docs []core.RetrievedDocument) string {
	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}

	var b strings.Builder
	b.WriteString("Answer the question based on the following context:\n\n")
	b.WriteString("Context: ")
	b.WriteString(strings.Join(contents, "\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
