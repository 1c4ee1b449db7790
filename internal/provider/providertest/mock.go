// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/confidant/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set StreamFunc to control behavior; an unset StreamFunc panics on call.
// All methods are safe for concurrent use.
type MockProvider struct {
	StreamFunc func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	Model      string

	mu       sync.Mutex
	requests []provider.CompletionRequest
}

// Stream records the request and delegates to StreamFunc.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.StreamFunc(ctx, req)
}

// ModelName returns Model, or "mock-model" when unset.
func (m *MockProvider) ModelName() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Chunks returns a StreamFunc that emits each fragment as a content chunk,
// then tail (if non-nil) as a final error chunk, then closes the channel.
func Chunks(tail error, fragments ...string) func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	return func(_ context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
		ch := make(chan provider.StreamChunk, len(fragments)+1)
		for _, f := range fragments {
			ch <- provider.StreamChunk{Content: f}
		}
		if tail != nil {
			ch <- provider.StreamChunk{Err: tail}
		}
		close(ch)
		return ch, nil
	}
}

// Fail returns a StreamFunc that rejects the request with err.
func Fail(err error) func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	return func(_ context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
		return nil, err
	}
}

// Interface guard.
var _ provider.Provider = (*MockProvider)(nil)
