package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/flemzord/confidant/internal/provider"
)

// openAI wire types for JSON serialization.

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Stream      bool         `json:"stream"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildRequest converts a provider.CompletionRequest into a streaming
// oaiRequest, filling unset sampling fields from cfg.
func buildRequest(cfg Config, req provider.CompletionRequest) oaiRequest {
	messages := make([]oaiMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = oaiMessage{Role: string(m.Role), Content: m.Content}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = cfg.MaxTokens
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = cfg.Temperature
	}

	return oaiRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Stream:      true,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// doRequest executes an HTTP POST to the chat completions endpoint.
func (p *Provider) doRequest(ctx context.Context, body oaiRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := p.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	return resp, nil
}

// classifyTransportError maps a client or read error to a provider sentinel.
// Caller cancellation is returned unchanged.
func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", provider.ErrTimeout, ctx.Err())
		}
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", provider.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", provider.ErrUpstreamTransport, err)
}

// maxErrorBodySize caps how much of an error response body is read to prevent memory spikes.
const maxErrorBodySize = 4096

// handleErrorResponse turns a non-2xx response into a *provider.StatusError.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &provider.StatusError{Code: resp.StatusCode, Body: string(body)}
}
