package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/flemzord/confidant/internal/fsutil"
	"github.com/flemzord/confidant/internal/history"
)

// Store keeps the history as a JSON array in a single file.
type Store struct {
	path string
	// mu orders writers in this process; the rename keeps readers consistent.
	mu sync.Mutex
}

// NewStore returns a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load implements history.Store.
func (s *Store) Load(ctx context.Context) (history.History, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", history.ErrResourceMissing, s.path)
		}
		return nil, fmt.Errorf("history.file: read %s: %w", s.path, err)
	}
	h, err := history.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("history.file: %s: %w", s.path, err)
	}
	return h, nil
}

// Persist implements history.Store. The file is replaced atomically.
func (s *Store) Persist(ctx context.Context, h history.History) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := history.Marshal(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fsutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("history.file: %w", err)
	}
	return nil
}

// Interface guard.
var _ history.Store = (*Store)(nil)
