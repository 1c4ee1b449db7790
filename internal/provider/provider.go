// Package provider defines the contract between the chat session and an
// upstream completion service.
package provider

import "context"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live in separate packages
// (e.g. modules/provider/openai_compatible) and also implement core.Module.
type Provider interface {
	// Stream sends a completion request and returns a channel of chunks.
	// Errors before the body is readable (connection refused, non-2xx
	// status) are returned directly. Mid-stream errors are delivered as a
	// final StreamChunk with Err set. The channel is closed when the
	// upstream body ends.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}
