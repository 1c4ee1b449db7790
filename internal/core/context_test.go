package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestAppContext_ForModule(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := NewAppContext(logger, "/data")
	child := ctx.ForModule("history.file")

	child.Logger.Info("hello")

	if !bytes.Contains(buf.Bytes(), []byte("history.file")) {
		t.Errorf("expected child logger to contain module ID, got: %s", buf.String())
	}
	if child.DataDir != "/data" {
		t.Errorf("DataDir = %q, want /data", child.DataDir)
	}
}

func TestAppContext_ServicesSharedWithChildren(t *testing.T) {
	ctx := NewAppContext(nil, "/data")
	child := ctx.ForModule("provider.openai_compatible")

	child.RegisterService("provider.upstream", 42)

	v, ok := ServiceAs[int](ctx, "provider.upstream")
	if !ok || v != 42 {
		t.Fatalf("ServiceAs = %v, %v; want 42, true", v, ok)
	}
	if _, ok := ServiceAs[string](ctx, "provider.upstream"); ok {
		t.Error("ServiceAs with wrong type should report false")
	}
	if _, ok := ctx.Service("missing"); ok {
		t.Error("expected missing service lookup to fail")
	}
}

func TestAppContext_LoadModule(t *testing.T) {
	t.Cleanup(resetRegistry)

	provisioned := false
	validated := false

	RegisterModule(&trackingModule{
		id:          "test.loadmod",
		onProvision: func() { provisioned = true },
		onValidate:  func() { validated = true },
	})

	ctx := NewAppContext(nil, "/data")
	mod, err := ctx.LoadModule("test.loadmod")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mod == nil {
		t.Fatal("expected non-nil module")
	}
	if !provisioned {
		t.Error("expected Provision to be called")
	}
	if !validated {
		t.Error("expected Validate to be called")
	}
}

func TestAppContext_LoadModule_UnknownID(t *testing.T) {
	t.Cleanup(resetRegistry)

	ctx := NewAppContext(nil, "/data")
	if _, err := ctx.LoadModule("does.not.exist"); err == nil {
		t.Fatal("expected error for unknown module")
	}
}

func TestAppContext_LoadModule_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  *trackingModule
	}{
		{"provision", &trackingModule{id: "test.provfail", provisionErr: errors.New("provision boom")}},
		{"validate", &trackingModule{id: "test.valfail", validateErr: errors.New("validate boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(resetRegistry)
			RegisterModule(tt.mod)

			ctx := NewAppContext(nil, "/data")
			if _, err := ctx.LoadModule(string(tt.mod.id)); err == nil {
				t.Fatalf("expected %s error", tt.name)
			}
		})
	}
}

func TestAppContext_LoadModule_WithConfig(t *testing.T) {
	t.Cleanup(resetRegistry)

	configured := false
	receivedKey := ""
	RegisterModule(&configurableMod{
		id:          "test.cfgmod",
		configured:  &configured,
		receivedKey: &receivedKey,
	})

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("key: hello"), &node); err != nil {
		t.Fatal(err)
	}

	ctx := NewAppContext(nil, "/data").WithModuleConfigs(map[string]yaml.Node{
		"test.cfgmod": *node.Content[0],
	})

	if _, err := ctx.LoadModule("test.cfgmod"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !configured {
		t.Error("expected Configure to be called")
	}
	if receivedKey != "hello" {
		t.Errorf("receivedKey = %q, want %q", receivedKey, "hello")
	}
}

func TestAppContext_LoadModule_NoConfigStillConfigures(t *testing.T) {
	t.Cleanup(resetRegistry)

	configured := false
	receivedKey := "unset"
	RegisterModule(&configurableMod{
		id:          "test.noconfig",
		configured:  &configured,
		receivedKey: &receivedKey,
	})

	ctx := NewAppContext(nil, "/data")
	if _, err := ctx.LoadModule("test.noconfig"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !configured {
		t.Error("Configure should run with an empty node so defaults apply")
	}
	if receivedKey != "" {
		t.Errorf("receivedKey = %q, want empty", receivedKey)
	}
}

func TestAppContext_LoadModule_ConfigError(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&configurableMod{
		id:        "test.cfgerr",
		configErr: errors.New("config boom"),
	})

	ctx := NewAppContext(nil, "/data")
	if _, err := ctx.LoadModule("test.cfgerr"); err == nil {
		t.Fatal("expected error on configure failure")
	}
}

// trackingModule is a test helper that tracks lifecycle calls.
type trackingModule struct {
	id           ModuleID
	onProvision  func()
	onValidate   func()
	onStart      func()
	onStop       func()
	provisionErr error
	validateErr  error
	startErr     error
}

func (m *trackingModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{
		ID: m.id,
		New: func() Module {
			cp := *m
			return &cp
		},
	}
}

func (m *trackingModule) Provision(_ *AppContext) error {
	if m.onProvision != nil {
		m.onProvision()
	}
	return m.provisionErr
}

func (m *trackingModule) Validate() error {
	if m.onValidate != nil {
		m.onValidate()
	}
	return m.validateErr
}

func (m *trackingModule) Start() error {
	if m.onStart != nil {
		m.onStart()
	}
	return m.startErr
}

func (m *trackingModule) Stop(_ context.Context) error {
	if m.onStop != nil {
		m.onStop()
	}
	return nil
}

// configurableMod is a test module that implements Configurable.
type configurableMod struct {
	id          ModuleID
	configured  *bool
	receivedKey *string
	configErr   error
}

func (m *configurableMod) ModuleInfo() ModuleInfo {
	return ModuleInfo{
		ID: m.id,
		New: func() Module {
			cp := *m
			return &cp
		},
	}
}

func (m *configurableMod) Configure(node *yaml.Node) error {
	if m.configErr != nil {
		return m.configErr
	}
	if m.configured != nil {
		*m.configured = true
	}
	if m.receivedKey != nil {
		var parsed struct {
			Key string `yaml:"key"`
		}
		if err := node.Decode(&parsed); err != nil {
			return err
		}
		*m.receivedKey = parsed.Key
	}
	return nil
}
