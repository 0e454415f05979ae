package mock

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultAnswer is returned by MockGenerator when no GenerateFunc is set.
const DefaultAnswer = "Use the password reset link on the sign-in page."

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, returns DefaultAnswer.
	GenerateFunc func(ctx context.Context, system, prompt string) (string, error)

	callCount  atomic.Int64
	mu         sync.Mutex
	lastPrompt string
}

// NewMockGenerator creates a mock generator with default behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate records the prompt and returns the configured answer.
func (m *MockGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.lastPrompt = prompt
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, system, prompt)
	}
	return DefaultAnswer, nil
}

// CallCount returns the number of times Generate was called.
func (m *MockGenerator) CallCount() int {
	return int(m.callCount.Load())
}

// LastPrompt returns the prompt passed to the most recent call.
func (m *MockGenerator) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// Reset clears the call count, the recorded prompt and custom functions.
func (m *MockGenerator) Reset() {
	m.callCount.Store(0)
	m.mu.Lock()
	m.lastPrompt = ""
	m.mu.Unlock()
	m.GenerateFunc = nil
}
