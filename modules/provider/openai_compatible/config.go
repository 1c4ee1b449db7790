package openaicompat

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Default upstream settings.
const (
	defaultBaseURL       = "https://api.deepseek.com/v1"
	defaultModel         = "deepseek-chat"
	defaultAPIKeyEnv     = "DEEPSEEK_API_KEY"
	defaultTemperature   = 0.7
	defaultMaxTokens     = 2000
	defaultTimeout       = 30 * time.Second
	defaultStreamTimeout = 5 * time.Minute
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	APIKeyEnv     string            `yaml:"api_key_env"`
	Model         string            `yaml:"model"`
	Temperature   *float64          `yaml:"temperature"`
	MaxTokens     int               `yaml:"max_tokens"`
	Headers       map[string]string `yaml:"headers"`
	Timeout       time.Duration     `yaml:"timeout"`
	StreamTimeout time.Duration     `yaml:"stream_timeout"`
}

// defaults sets default values for unset fields.
func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = defaultAPIKeyEnv
	}
	if c.Temperature == nil {
		t := defaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.StreamTimeout == 0 {
		c.StreamTimeout = defaultStreamTimeout
	}
}

// resolveKey returns the API key, preferring the literal value over the
// environment variable.
func (c *Config) resolveKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv(c.APIKeyEnv)
}

// validate returns an error if a field is out of range.
func (c *Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("provider.openai_compatible: base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("provider.openai_compatible: base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.Model == "" {
		return fmt.Errorf("provider.openai_compatible: model is required")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("provider.openai_compatible: max_tokens must not be negative")
	}
	if t := *c.Temperature; t < 0 || t > 2 {
		return fmt.Errorf("provider.openai_compatible: temperature must be within [0, 2], got %g", t)
	}
	if c.Timeout < 0 || c.StreamTimeout < 0 {
		return fmt.Errorf("provider.openai_compatible: timeouts must not be negative")
	}
	return nil
}
