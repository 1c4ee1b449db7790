// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for confidant.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// DataDir anchors relative paths (profile, history). Defaults to the
	// directory of the config file.
	DataDir string `yaml:"data_dir,omitempty"`

	Session   SessionConfig   `yaml:"session"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "history.file").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// SessionConfig controls how a chat session builds prompts and treats
// failed attempts.
type SessionConfig struct {
	// ProfilePath is the JSON document holding the "my_profile" object.
	ProfilePath string `yaml:"profile_path"`

	// HistoryWindow is how many recent turns the system prompt quotes.
	HistoryWindow int `yaml:"history_window"`

	// MaxPriorTurns caps the turns replayed as chat messages. 0 sends all.
	MaxPriorTurns int `yaml:"max_prior_turns"`

	// RetainUnanswered keeps the user turn in memory after a failed attempt.
	RetainUnanswered bool `yaml:"retain_unanswered"`

	// Template is an optional YAML prompt template overriding the built-in one.
	Template string `yaml:"template,omitempty"`
}

// TelemetryConfig configures tracing. An empty OTLPEndpoint keeps spans
// in-process.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name,omitempty"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	Insecure     bool   `yaml:"insecure,omitempty"`
}

// Default values.
const (
	DefaultLogLevel      = "info"
	DefaultProfilePath   = "profile.json"
	DefaultHistoryWindow = 5
	DefaultServiceName   = "confidant"
)

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
	if cfg.Session.ProfilePath == "" {
		cfg.Session.ProfilePath = DefaultProfilePath
	}
	if cfg.Session.HistoryWindow == 0 {
		cfg.Session.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Default returns the configuration used when no config file exists: the
// file history backend, the DeepSeek-compatible provider and the HTTP gateway,
// all with their own defaults.
func Default() *Config {
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{
			"history.file":               emptyNode(),
			"provider.openai_compatible": emptyNode(),
			"gateway.http":               emptyNode(),
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func emptyNode() yaml.Node {
	return yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}
