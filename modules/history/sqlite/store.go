package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/confidant/internal/history"
	"github.com/flemzord/confidant/internal/provider"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Store keeps the history as ordered rows of the turns table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it.
// The caller closes the Store.
func Open(ctx context.Context, path string, cfg Config) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("history.sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history.sqlite: open %s: %w", path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history.sqlite: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history.sqlite: set busy_timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Load implements history.Store. A fresh database yields an empty history.
func (s *Store) Load(ctx context.Context) (history.History, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT role, content FROM turns ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("history.sqlite: load: %w", err)
	}
	defer func() { _ = rows.Close() }()

	h := history.History{}
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("history.sqlite: scan turn: %w", err)
		}
		h.Append(history.Turn{Role: provider.MessageRole(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history.sqlite: load rows: %w", err)
	}
	return h, nil
}

// Persist implements history.Store. The table is rewritten inside one
// transaction, so readers observe either the old or the new sequence.
func (s *Store) Persist(ctx context.Context, h history.History) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history.sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM turns"); err != nil {
		return fmt.Errorf("history.sqlite: clear turns: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO turns (seq, role, content) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("history.sqlite: prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, t := range h {
		if _, err = stmt.ExecContext(ctx, i+1, string(t.Role), t.Content); err != nil {
			return fmt.Errorf("history.sqlite: insert turn %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("history.sqlite: commit: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Interface guard.
var _ history.Store = (*Store)(nil)
