// Package session implements the chat session engine: one user, one
// profile, one history. Requests are serialized; each one composes the
// system prompt, relays the upstream stream to the caller and commits the
// completed turn pair to the history store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/confidant/internal/history"
	"github.com/flemzord/confidant/internal/profile"
	"github.com/flemzord/confidant/internal/prompt"
	"github.com/flemzord/confidant/internal/provider"
)

// ServiceName is the AppContext key under which the session is registered.
const ServiceName = "chat.session"

// Sentinel errors.
var (
	ErrInvalidArgument = errors.New("session: prompt must not be empty")
	ErrPersist         = errors.New("session: reply not saved")
)

var tracer = otel.Tracer("github.com/flemzord/confidant/internal/session")

// Event is one item delivered to the caller of Handle: a content fragment
// or a terminal error. The channel closing marks the end of the attempt.
type Event struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// IsError reports whether e is a terminal error event.
func (e Event) IsError() bool {
	return e.Error != ""
}

// Config tunes request assembly and failure handling.
type Config struct {
	// MaxPriorTurns caps the turns replayed as chat messages. 0 sends all.
	MaxPriorTurns int

	// RetainUnanswered keeps the user turn in memory after a failed attempt,
	// so later prompts still quote it. Storage only ever receives answered
	// turns.
	RetainUnanswered bool
}

// Deps are the collaborators of a Session. Metrics and Logger are optional.
type Deps struct {
	Provider provider.Provider
	Store    history.Store
	Composer *prompt.Composer
	Profile  profile.Profile
	History  history.History
	Metrics  *Metrics
	Logger   *slog.Logger
}

// Session owns the in-memory history and serializes every request that
// reads or modifies it.
type Session struct {
	cfg      Config
	upstream provider.Provider
	store    history.Store
	composer *prompt.Composer
	profile  profile.Profile
	metrics  *Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	history history.History
}

// New creates a Session seeded with deps.History.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Provider == nil {
		return nil, errors.New("session: provider is required")
	}
	if deps.Store == nil {
		return nil, errors.New("session: history store is required")
	}
	if deps.Composer == nil {
		return nil, errors.New("session: composer is required")
	}
	if cfg.MaxPriorTurns < 0 {
		return nil, fmt.Errorf("session: max prior turns must be >= 0, got %d", cfg.MaxPriorTurns)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	s := &Session{
		cfg:      cfg,
		upstream: deps.Provider,
		store:    deps.Store,
		composer: deps.Composer,
		profile:  deps.Profile,
		metrics:  metrics,
		logger:   logger.With("component", "session"),
		history:  deps.History.Clone(),
	}
	s.metrics.Turns.Set(float64(len(s.history)))
	return s, nil
}

// Handle starts one chat attempt for userPrompt. It fails fast with
// ErrInvalidArgument on an empty prompt, before any network activity.
// Whitespace is forwarded as typed. Otherwise the returned channel yields content events in
// upstream order, at most one terminal error event, and is closed when the
// attempt ends. The caller must drain the channel or cancel ctx.
func (s *Session) Handle(ctx context.Context, userPrompt string) (<-chan Event, error) {
	if userPrompt == "" {
		return nil, ErrInvalidArgument
	}

	out := make(chan Event, 16)
	s.metrics.Waiting.Inc()
	go func() {
		defer close(out)
		s.attempt(ctx, userPrompt, out)
	}()
	return out, nil
}

// attempt runs the whole read-modify-persist cycle under the session lock.
func (s *Session) attempt(ctx context.Context, userPrompt string, out chan<- Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Waiting.Dec()
	s.metrics.InFlight.Inc()
	defer s.metrics.InFlight.Dec()

	ctx, span := tracer.Start(ctx, "session.Handle", trace.WithAttributes(
		attribute.String("llm.model", s.upstream.ModelName()),
		attribute.Int("history.turns", len(s.history)),
	))
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	logger := s.logger.With("turns", len(s.history))

	prior := s.history
	if s.cfg.MaxPriorTurns > 0 {
		prior = s.history.Last(s.cfg.MaxPriorTurns)
	}
	req := s.buildRequest(prior, userPrompt)

	// The user turn joins the history before the call so the system prompt
	// quotes it; it is rolled back unless the attempt completes.
	s.history.Append(history.User(userPrompt))
	req.Messages[0].Content = s.composer.Compose(s.profile, s.history)

	var first sync.Once
	emit := func(fragment string) error {
		first.Do(func() { s.metrics.FirstFragment.Observe(time.Since(start).Seconds()) })
		select {
		case out <- Event{Content: fragment}:
			s.metrics.Fragments.Inc()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r := newRelay(s.upstream, logger)
	reply, err := r.run(ctx, req, emit)
	if err != nil {
		s.rollback()
		outcome := outcomeFor(err)
		s.finish(span, outcome, start, err)

		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			logger.Info("chat attempt canceled", "fragments", r.fragments)
			return
		}
		logger.Warn("chat attempt failed",
			"error", err,
			"kind", outcome,
			"status", provider.StatusCode(err),
			"fragments", r.fragments,
		)
		send(ctx, out, Event{Error: err.Error()})
		return
	}

	s.history.Append(history.Assistant(reply))
	s.metrics.Turns.Set(float64(len(s.history)))

	// The reply is complete; a caller leaving now must not lose it.
	if err := s.store.Persist(context.WithoutCancel(ctx), s.history.Answered()); err != nil {
		s.finish(span, outcomePersistFailed, start, fmt.Errorf("%w: %w", ErrPersist, err))
		logger.Error("persist history", "error", err, "turns", len(s.history))
		send(ctx, out, Event{Error: "reply not saved: " + err.Error()})
		return
	}

	s.finish(span, outcomeCompleted, start, nil)
	logger.Info("chat attempt completed", "fragments", r.fragments, "turns", len(s.history))
}

func (s *Session) buildRequest(prior history.History, userPrompt string) provider.CompletionRequest {
	msgs := make([]provider.LLMMessage, 0, len(prior)+2)
	msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleSystem})
	msgs = append(msgs, prior.Messages()...)
	msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleUser, Content: userPrompt})
	return provider.CompletionRequest{Messages: msgs}
}

// rollback drops the unanswered user turn unless configured to keep it.
func (s *Session) rollback() {
	if !s.cfg.RetainUnanswered {
		s.history.Truncate(len(s.history) - 1)
	}
	s.metrics.Turns.Set(float64(len(s.history)))
}

func (s *Session) finish(span trace.Span, outcome string, start time.Time, err error) {
	s.metrics.Attempts.WithLabelValues(outcome).Inc()
	s.metrics.Duration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("chat.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, context.Canceled) {
		return outcomeCanceled
	}
	return provider.Kind(err)
}

// send delivers a terminal event unless nobody is listening any more.
func send(ctx context.Context, out chan<- Event, ev Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// Snapshot returns a copy of the in-memory history.
func (s *Session) Snapshot() history.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Clone()
}

// Turns returns the number of turns in the in-memory history.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Profile returns the profile the session was created with.
func (s *Session) Profile() profile.Profile {
	return s.profile
}

// Model returns the upstream model identifier.
func (s *Session) Model() string {
	return s.upstream.ModelName()
}

// Clear empties the history and persists the empty sequence. The in-memory
// history is left untouched if persisting fails.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Persist(ctx, history.History{}); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.logger.Info("history cleared", "turns", len(s.history))
	s.history = nil
	s.metrics.Turns.Set(0)
	return nil
}
