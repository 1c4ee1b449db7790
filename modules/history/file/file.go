// Package file implements the history.file module: the conversation is kept
// as an indented JSON array in one file, replaced atomically on every save,
// with optional scheduled snapshots.
package file

import (
	"fmt"
	"log/slog"

	"github.com/flemzord/confidant/internal/core"
	"github.com/flemzord/confidant/internal/cron"
	"github.com/flemzord/confidant/internal/fsutil"
	"github.com/flemzord/confidant/internal/history"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Module provides a file-backed history.Store.
type Module struct {
	config Config
	logger *slog.Logger
	store  *Store
	job    *SnapshotJob
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "history.file",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("history.file: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.store = NewStore(fsutil.Resolve(ctx.DataDir, m.config.Path))
	ctx.RegisterService(history.ServiceName, m.store)

	if m.config.SnapshotSchedule != "" {
		sched, ok := core.ServiceAs[*cron.Scheduler](ctx, cron.ServiceName)
		if !ok {
			return fmt.Errorf("history.file: snapshot_schedule set but no scheduler is available")
		}
		m.job = &SnapshotJob{
			Source:       m.store.Path(),
			ScheduleExpr: m.config.SnapshotSchedule,
			Retain:       m.config.SnapshotRetain,
			Logger:       m.logger,
		}
		if err := sched.RegisterJob(m.job); err != nil {
			return fmt.Errorf("history.file: %w", err)
		}
	}

	m.logger.Info("file history provisioned",
		"path", m.store.Path(),
		"snapshots", m.config.SnapshotSchedule != "",
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Store returns the provisioned store.
func (m *Module) Store() *Store {
	return m.store
}

// Compile-time interface assertions.
var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
)
