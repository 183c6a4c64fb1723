package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/poiesic/ragfuse/ai"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, returns Answer.
	GenerateFunc func(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error)

	// Answer is the default completion.
	Answer string

	callCount atomic.Int64

	mu         sync.Mutex
	lastPrompt string
}

// NewMockGenerator creates a mock generator that always answers with answer.
func NewMockGenerator(answer string) *MockGenerator {
	return &MockGenerator{Answer: answer}
}

// Generate records the prompt and returns the configured answer.
func (m *MockGenerator) Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.lastPrompt = prompt
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, opts)
	}
	return m.Answer, nil
}

// LastPrompt returns the most recent prompt passed to Generate.
func (m *MockGenerator) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	return int(m.callCount.Load())
}
