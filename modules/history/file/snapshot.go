package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/flemzord/confidant/internal/cron"
	"github.com/flemzord/confidant/internal/fsutil"
)

const (
	snapshotDir    = "snapshots"
	snapshotPrefix = "history-"
	snapshotLayout = "20060102T150405Z"
)

// SnapshotJob copies the history document into a snapshots directory next
// to it and prunes the oldest copies beyond Retain.
type SnapshotJob struct {
	Source       string
	ScheduleExpr string
	Retain       int
	Logger       *slog.Logger

	now func() time.Time
}

// Compile-time interface check.
var _ cron.Job = (*SnapshotJob)(nil)

// Name implements cron.Job.
func (j *SnapshotJob) Name() string { return "history_snapshot" }

// Schedule implements cron.Job.
func (j *SnapshotJob) Schedule() string { return j.ScheduleExpr }

// Dir returns the directory snapshots are written to.
func (j *SnapshotJob) Dir() string {
	return filepath.Join(filepath.Dir(j.Source), snapshotDir)
}

// Run implements cron.Job. A missing source document is not an error.
func (j *SnapshotJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("history snapshot cancelled: %w", err)
	}

	data, err := os.ReadFile(j.Source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			j.Logger.Debug("no history to snapshot", "path", j.Source)
			return nil
		}
		return fmt.Errorf("read history: %w", err)
	}

	now := time.Now
	if j.now != nil {
		now = j.now
	}
	name := snapshotPrefix + now().UTC().Format(snapshotLayout) + ".json"
	target := filepath.Join(j.Dir(), name)
	if err := fsutil.WriteFileAtomic(target, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	pruned, err := j.prune()
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	j.Logger.Info("history snapshot written", "path", target, "pruned", pruned)
	return nil
}

// Snapshots lists snapshot files, oldest first.
func (j *SnapshotJob) Snapshots() ([]string, error) {
	entries, err := os.ReadDir(j.Dir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), snapshotPrefix) && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	// The timestamp layout sorts lexically in time order.
	slices.Sort(names)
	return names, nil
}

func (j *SnapshotJob) prune() (int, error) {
	if j.Retain <= 0 {
		return 0, nil
	}
	names, err := j.Snapshots()
	if err != nil {
		return 0, err
	}
	excess := len(names) - j.Retain
	for i := range max(excess, 0) {
		if err := os.Remove(filepath.Join(j.Dir(), names[i])); err != nil {
			return i, err
		}
	}
	return max(excess, 0), nil
}
