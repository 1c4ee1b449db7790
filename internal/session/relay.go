package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flemzord/confidant/internal/provider"
)

var errRelayReused = errors.New("session: relay already used")

// relay drives one upstream attempt from Idle to Completed or Failed.
// It accumulates the reply and forwards every fragment as it arrives.
// A relay is single-use.
type relay struct {
	upstream provider.Provider
	logger   *slog.Logger

	state     State
	reply     strings.Builder
	fragments int
}

func newRelay(upstream provider.Provider, logger *slog.Logger) *relay {
	return &relay{upstream: upstream, logger: logger}
}

// run sends req upstream and calls emit for each non-empty fragment, in
// order. On Completed it returns the full reply. On Failed the accumulator
// is discarded and the cause is returned; fragments already emitted stay
// emitted. An emit error aborts the attempt.
func (r *relay) run(ctx context.Context, req provider.CompletionRequest, emit func(string) error) (string, error) {
	if r.state.Terminal() {
		return "", errRelayReused
	}

	r.transition(StateRequesting)
	chunks, err := r.upstream.Stream(ctx, req)
	if err != nil {
		return "", r.fail(err)
	}

	r.transition(StateStreaming)
	var streamErr error
	for chunk := range chunks {
		if chunk.Err != nil {
			streamErr = chunk.Err
			break
		}
		if chunk.Content == "" {
			continue
		}
		r.reply.WriteString(chunk.Content)
		r.fragments++
		if err := emit(chunk.Content); err != nil {
			streamErr = err
			break
		}
	}
	if streamErr != nil {
		// Drain so the provider goroutine can exit.
		for range chunks { //nolint:revive // intentional empty drain loop
		}
		return "", r.fail(streamErr)
	}

	// A canceled caller may see the channel close without an error chunk.
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", provider.ErrTimeout, err)
		}
		return "", r.fail(err)
	}
	if r.reply.Len() == 0 {
		return "", r.fail(provider.ErrEmptyReply)
	}

	r.transition(StateCompleted)
	return r.reply.String(), nil
}

func (r *relay) fail(err error) error {
	r.reply.Reset()
	r.transition(StateFailed)
	return err
}

func (r *relay) transition(to State) {
	r.logger.Debug("relay transition", "from", r.state, "to", to, "fragments", r.fragments)
	r.state = to
}
