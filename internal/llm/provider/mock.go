package provider

import (
	"context"
	"sync"
)

func init() {
	RegisterFactory("mock", func(config map[string]any) (Provider, error) {
		reply := stringOpt(config, "reply")
		if reply == "" {
			reply = "This is a mock reply."
		}
		return NewMockProvider(MockResult{Content: reply}), nil
	})
}

// MockResult is one scripted outcome for MockProvider.
type MockResult struct {
	Content string
	Err     error
}

// MockProvider replays scripted results and records every request.
// When the script runs out the last result repeats.
type MockProvider struct {
	mu       sync.Mutex
	script   []MockResult
	calls    int
	requests []CompletionRequest

	// Hook, if set, runs before each call and may block.
	Hook func(ctx context.Context, req CompletionRequest)
}

// NewMockProvider creates a provider returning results in order.
func NewMockProvider(results ...MockResult) *MockProvider {
	return &MockProvider{script: results}
}

// Name returns "mock".
func (m *MockProvider) Name() string { return "mock" }

// CreateCompletion returns the next scripted result.
func (m *MockProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.Hook != nil {
		m.Hook(ctx, req)
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var res MockResult
	if len(m.script) > 0 {
		idx := m.calls
		if idx >= len(m.script) {
			idx = len(m.script) - 1
		}
		res = m.script[idx]
	}
	m.calls++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, NewProviderError(m.Name(), ErrorCodeTimeout, err.Error(), err)
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return &CompletionResponse{
		Content:      res.Content,
		FinishReason: "stop",
		Usage:        Usage{PromptTokens: len(req.Messages), CompletionTokens: 1, TotalTokens: len(req.Messages) + 1},
	}, nil
}

// Requests returns a copy of every request seen so far.
func (m *MockProvider) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of CreateCompletion calls.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
