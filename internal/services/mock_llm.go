package services

import (
	"context"
	"sync"
)

// MockBackend is a mock implementation of ModelBackend for testing.
type MockBackend struct {
	BackendName   string
	InitModelFunc func(ctx context.Context) error
	GenerateFunc  func(ctx context.Context, prompt string) (string, error)

	// Track calls for testing
	InitModelCalls int
	GenerateCalls  []string

	mu sync.Mutex // protects all fields above
}

// NewMockBackend creates a new mock backend.
func NewMockBackend(name string) *MockBackend {
	return &MockBackend{
		BackendName:   name,
		GenerateCalls: make([]string, 0),
	}
}

func (m *MockBackend) Name() string {
	return m.BackendName
}

// InitModel mocks backend initialization.
func (m *MockBackend) InitModel(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InitModelCalls++

	if m.InitModelFunc != nil {
		return m.InitModelFunc(ctx)
	}
	return nil
}

// Generate mocks completion generation.
func (m *MockBackend) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	fn := m.GenerateFunc
	m.GenerateCalls = append(m.GenerateCalls, prompt)
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt)
	}
	return "Mock response from " + m.BackendName + ".", nil
}

// SetGenerateError sets up the mock to return an error on Generate.
func (m *MockBackend) SetGenerateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateFunc = func(ctx context.Context, prompt string) (string, error) {
		return "", err
	}
}

// SetGenerateResponse sets up the mock to return a fixed completion.
func (m *MockBackend) SetGenerateResponse(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateFunc = func(ctx context.Context, prompt string) (string, error) {
		return text, nil
	}
}

// GenerateCallCount reports the number of Generate calls so far.
func (m *MockBackend) GenerateCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.GenerateCalls)
}

// LastPrompt returns the prompt of the most recent Generate call.
func (m *MockBackend) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.GenerateCalls) == 0 {
		return ""
	}
	return m.GenerateCalls[len(m.GenerateCalls)-1]
}

// Reset clears all call tracking.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitModelCalls = 0
	m.GenerateCalls = make([]string, 0)
	m.InitModelFunc = nil
	m.GenerateFunc = nil
}
