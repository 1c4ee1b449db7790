package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
)

// FileName is the config file name looked up in the standard locations.
const FileName = "confidant.yaml"

// ErrNotFound is returned by FindPath when no config file exists.
var ErrNotFound = errors.New("config: no configuration file found")

// Resolve returns a sorted list of module IDs from the configuration.
// The deterministic order ensures consistent module loading.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// FindPath returns explicit if set, else the first existing file among
// SearchPaths. An explicit path is returned even if it does not exist so
// that Load reports the real error.
func FindPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, p := range SearchPaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", ErrNotFound
}

// SearchPaths lists candidate config locations in priority order:
// $XDG_CONFIG_HOME/confidant, ~/.config/confidant, then the working directory.
func SearchPaths() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "confidant", FileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "confidant", FileName))
	}
	return append(paths, FileName)
}
