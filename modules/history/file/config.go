package file

import (
	"fmt"

	"github.com/flemzord/confidant/internal/cron"
)

const (
	defaultFileName = "conversation_history.json"
	defaultRetain   = 7
)

// Config holds the file history module configuration.
type Config struct {
	// Path is the history document. Relative paths resolve against the data
	// directory. Defaults to conversation_history.json.
	Path string `yaml:"path"`

	// SnapshotSchedule enables periodic copies of the history document.
	SnapshotSchedule string `yaml:"snapshot_schedule"`

	// SnapshotRetain is how many snapshots to keep. Defaults to 7.
	SnapshotRetain int `yaml:"snapshot_retain"`
}

func (c *Config) defaults() {
	if c.Path == "" {
		c.Path = defaultFileName
	}
	if c.SnapshotRetain == 0 {
		c.SnapshotRetain = defaultRetain
	}
}

func (c *Config) validate() error {
	if c.SnapshotRetain < 0 {
		return fmt.Errorf("history.file: snapshot_retain must not be negative, got %d", c.SnapshotRetain)
	}
	if c.SnapshotSchedule != "" {
		if err := cron.ValidateSchedule(c.SnapshotSchedule); err != nil {
			return fmt.Errorf("history.file: %w", err)
		}
	}
	return nil
}
