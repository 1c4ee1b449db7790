// Package openaicompat provides an OpenAI-compatible LLM provider module.
// It works with any API that implements the OpenAI chat completions interface
// (DeepSeek, Mistral, Groq, Together, vLLM, LiteLLM, etc.) via a configurable base_url.
package openaicompat

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/flemzord/confidant/internal/core"
	"github.com/flemzord/confidant/internal/provider"
	"github.com/flemzord/confidant/internal/security"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Provider{})
}

// ServiceName is the service key the provider registers itself under.
const ServiceName = "provider.upstream"

// Provider is an OpenAI-compatible LLM provider.
type Provider struct {
	config Config
	apiKey string
	client *http.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai_compatible",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.logger = ctx.Logger
	// Use a transport with response-header timeout instead of a global client timeout.
	// A global timeout kills long-running SSE streams; stream_timeout bounds the body.
	p.client = &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: p.config.Timeout,
		},
	}

	p.apiKey = p.config.resolveKey()
	if p.apiKey == "" {
		p.logger.Warn("no API key configured, upstream will likely reject requests",
			"api_key_env", p.config.APIKeyEnv)
	}
	if r, ok := core.ServiceAs[*security.Redactor](ctx, security.RedactorService); ok {
		r.AddLiteral(p.apiKey)
	}

	ctx.RegisterService(ServiceName, p)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	return p.config.validate()
}

// Stream implements provider.Provider.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	streamCtx, cancel := context.WithTimeout(ctx, p.config.StreamTimeout)

	resp, err := p.doRequest(streamCtx, buildRequest(p.config, req))
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close() //nolint:errcheck // best-effort close
		return nil, handleErrorResponse(resp)
	}

	out := make(chan provider.StreamChunk, 16)
	go func() {
		defer close(out)
		defer cancel()
		defer resp.Body.Close() //nolint:errcheck // best-effort close

		// Select on the caller's ctx to avoid a goroutine leak if the consumer
		// abandons the channel. The stream deadline must still be reported.
		send := func(c provider.StreamChunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		dec := NewDecoder(resp.Body)
		for dec.Next() {
			line := dec.Line()
			switch line.Kind {
			case LineMalformed:
				p.logger.Debug("skipping malformed stream line", "error", line.Err)
			case LineData:
				if line.Fragment == "" {
					continue
				}
				if !send(provider.StreamChunk{Content: line.Fragment}) {
					return
				}
			}
		}

		if err := dec.Err(); err != nil {
			send(provider.StreamChunk{Err: classifyTransportError(streamCtx, err)})
			return
		}
		// Closing the body on deadline can look like a clean EOF.
		if streamCtx.Err() != nil {
			send(provider.StreamChunk{Err: classifyTransportError(streamCtx, streamCtx.Err())})
		}
	}()

	return out, nil
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.config.Model
}

// Compile-time interface assertions.
var (
	_ core.Module       = (*Provider)(nil)
	_ core.Configurable = (*Provider)(nil)
	_ core.Provisioner  = (*Provider)(nil)
	_ core.Validator    = (*Provider)(nil)
	_ provider.Provider = (*Provider)(nil)
)
