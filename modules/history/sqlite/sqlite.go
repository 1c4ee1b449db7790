// Package sqlite implements the history.sqlite module: the conversation is
// kept in a single-table SQLite database using modernc.org/sqlite (pure Go,
// no CGO) in WAL mode.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/confidant/internal/core"
	"github.com/flemzord/confidant/internal/fsutil"
	"github.com/flemzord/confidant/internal/history"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module provides a SQLite-backed history.Store.
type Module struct {
	config Config
	path   string
	logger *slog.Logger
	store  *Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "history.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("history.sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.path = fsutil.Resolve(ctx.DataDir, m.config.Path)

	store, err := Open(context.Background(), m.path, m.config)
	if err != nil {
		return err
	}
	m.store = store
	ctx.RegisterService(history.ServiceName, m.store)

	m.logger.Info("sqlite history provisioned",
		"path", m.path,
		"wal", m.config.walEnabled(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.store.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("history.sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.store == nil {
		return nil
	}
	m.logger.Info("sqlite history stopping")
	return m.store.Close()
}
