package history

import (
	"context"
	"errors"
	"log/slog"
)

// ServiceName is the service key the configured history module registers
// its Store under.
const ServiceName = "history.store"

// Sentinel errors for history loading.
var (
	ErrResourceMissing   = errors.New("history resource missing")
	ErrMalformedResource = errors.New("history resource malformed")
)

// Store is the durable copy of the conversation. Persist replaces the
// stored sequence as a whole; a concurrent Load observes either the old
// or the new sequence.
type Store interface {
	Load(ctx context.Context) (History, error)
	Persist(ctx context.Context, h History) error
}

// LoadOrEmpty loads the stored history, degrading to an empty History on
// any failure. Missing or malformed resources are logged at warn level,
// anything else at error level. Invalid turns are dropped with a warning;
// the rest of the history is kept.
func LoadOrEmpty(ctx context.Context, store Store, logger *slog.Logger) History {
	h, err := store.Load(ctx)
	switch {
	case err == nil:
		valid, dropped := h.Sanitize()
		if len(dropped) > 0 {
			logger.Warn("history turns dropped",
				"dropped", len(dropped),
				"kept", len(valid),
				"error", errors.Join(dropped...),
			)
		}
		return valid
	case errors.Is(err, ErrResourceMissing):
		logger.Warn("history not found, starting empty", "error", err)
	case errors.Is(err, ErrMalformedResource):
		logger.Warn("history malformed, starting empty", "error", err)
	default:
		logger.Error("history unreadable, starting empty", "error", err)
	}
	return History{}
}
