package config

import (
	"strings"
	"testing"

	"github.com/flemzord/confidant/internal/core"
	"gopkg.in/yaml.v3"
)

// stubModule is a basic module for testing.
type stubModule struct {
	id string
}

func (m *stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(m.id),
		New: func() core.Module { return &stubModule{id: m.id} },
	}
}

func init() {
	for _, id := range []string{"history.stub", "history.alt", "provider.stub", "gateway.stub"} {
		core.RegisterModule(&stubModule{id: id})
	}
}

func validConfig() *Config {
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{
			"history.stub":  {},
			"provider.stub": {},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "missing version",
			mutate: func(c *Config) { c.Version = "" },
			want:   []string{"version"},
		},
		{
			name:   "unsupported version",
			mutate: func(c *Config) { c.Version = "99" },
			want:   []string{"unsupported"},
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.LogLevel = "loud" },
			want:   []string{"log_level"},
		},
		{
			name:   "empty modules",
			mutate: func(c *Config) { c.Modules = map[string]yaml.Node{} },
			want:   []string{"at least one", "history.*", "provider.*"},
		},
		{
			name: "unknown modules",
			mutate: func(c *Config) {
				c.Modules["bad.one"] = yaml.Node{}
				c.Modules["bad.two"] = yaml.Node{}
			},
			want: []string{"bad.one", "bad.two"},
		},
		{
			name:   "two history modules",
			mutate: func(c *Config) { c.Modules["history.alt"] = yaml.Node{} },
			want:   []string{"history.alt, history.stub"},
		},
		{
			name:   "no provider",
			mutate: func(c *Config) { delete(c.Modules, "provider.stub") },
			want:   []string{"exactly one provider.*"},
		},
		{
			name: "negative session values",
			mutate: func(c *Config) {
				c.Session.HistoryWindow = -1
				c.Session.MaxPriorTurns = -2
			},
			want: []string{"history_window", "max_prior_turns"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q should mention %q", err, w)
				}
			}
			if !strings.HasPrefix(err.Error(), "config:") {
				t.Errorf("error %q should be prefixed with config:", err)
			}
		})
	}
}

func TestValidate_ExtraNamespacesAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.Modules["gateway.stub"] = yaml.Node{}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
