package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/flemzord/confidant/internal/history"
	"github.com/flemzord/confidant/internal/history/historytest"
	"github.com/flemzord/confidant/internal/profile"
	"github.com/flemzord/confidant/internal/prompt"
	"github.com/flemzord/confidant/internal/provider"
	"github.com/flemzord/confidant/internal/provider/providertest"
)

type fixture struct {
	session  *Session
	upstream *providertest.MockProvider
	store    *historytest.Store
	metrics  *Metrics
}

func newFixture(t *testing.T, cfg Config, seed history.History, stream func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error)) *fixture {
	t.Helper()

	upstream := &providertest.MockProvider{StreamFunc: stream}
	store := historytest.NewStore(seed)
	metrics := NewMetrics(prometheus.NewRegistry())
	s, err := New(cfg, Deps{
		Provider: upstream,
		Store:    store,
		Composer: prompt.NewComposer(prompt.DefaultTemplate(), 5),
		Profile:  profile.Profile{Name: "Sam"},
		History:  seed,
		Metrics:  metrics,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{session: s, upstream: upstream, store: store, metrics: metrics}
}

// collect drains ch, failing the test if it is not closed in time.
func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()

	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("event channel not closed")
			return nil
		}
	}
}

func handle(t *testing.T, s *Session, text string) []Event {
	t.Helper()

	ch, err := s.Handle(context.Background(), text)
	if err != nil {
		t.Fatalf("Handle(%q): %v", text, err)
	}
	return collect(t, ch)
}

func TestHandle_Completed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil, providertest.Chunks(nil, "Hel", "lo"))
	events := handle(t, f.session, "hi there")

	want := []Event{{Content: "Hel"}, {Content: "lo"}}
	if len(events) != len(want) {
		t.Fatalf("events = %+v, want %+v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %+v, want %+v", i, events[i], want[i])
		}
	}

	if got := f.store.Persists(); got != 1 {
		t.Errorf("Persists = %d, want 1", got)
	}
	wantHist := history.History{history.User("hi there"), history.Assistant("Hello")}
	assertHistory(t, f.store.Stored(), wantHist)
	assertHistory(t, f.session.Snapshot(), wantHist)

	if got := testutil.ToFloat64(f.metrics.Attempts.WithLabelValues(outcomeCompleted)); got != 1 {
		t.Errorf("completed attempts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.Fragments); got != 2 {
		t.Errorf("fragments = %v, want 2", got)
	}
	if got := testutil.ToFloat64(f.metrics.Turns); got != 2 {
		t.Errorf("turns gauge = %v, want 2", got)
	}
}

func TestHandle_RequestShape(t *testing.T) {
	t.Parallel()

	seed := history.History{history.User("earlier"), history.Assistant("reply")}
	f := newFixture(t, Config{}, seed, providertest.Chunks(nil, "ok"))
	handle(t, f.session, "now")

	reqs := f.upstream.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	msgs := reqs[0].Messages
	if len(msgs) != 4 {
		t.Fatalf("messages = %+v, want system + 2 prior + user", msgs)
	}
	if msgs[0].Role != provider.MessageRoleSystem {
		t.Errorf("first role = %q, want system", msgs[0].Role)
	}
	for _, want := range []string{"- Name: Sam", "User: earlier", "You: reply", "User: now"} {
		if !strings.Contains(msgs[0].Content, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if msgs[1].Content != "earlier" || msgs[2].Content != "reply" {
		t.Errorf("prior turns = %+v", msgs[1:3])
	}
	if msgs[3].Role != provider.MessageRoleUser || msgs[3].Content != "now" {
		t.Errorf("last message = %+v, want user 'now'", msgs[3])
	}
}

func TestHandle_MaxPriorTurns(t *testing.T) {
	t.Parallel()

	var seed history.History
	for i := range 3 {
		seed.Append(history.User(fmt.Sprintf("q%d", i)), history.Assistant(fmt.Sprintf("a%d", i)))
	}
	f := newFixture(t, Config{MaxPriorTurns: 2}, seed, providertest.Chunks(nil, "ok"))
	handle(t, f.session, "now")

	msgs := f.upstream.Requests()[0].Messages
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
	if msgs[1].Content != "q2" || msgs[2].Content != "a2" {
		t.Errorf("prior turns = %+v, want q2/a2", msgs[1:3])
	}
}

func TestHandle_Failures(t *testing.T) {
	t.Parallel()

	seed := history.History{history.User("old"), history.Assistant("answer")}
	reset := fmt.Errorf("%w: connection reset by peer", provider.ErrUpstreamTransport)

	tests := []struct {
		name       string
		stream     func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error)
		wantEvents []Event
		wantError  string
		outcome    string
	}{
		{
			name:      "rejected",
			stream:    providertest.Fail(&provider.StatusError{Code: 500, Body: "server error"}),
			wantError: "500 server error",
			outcome:   "rejected",
		},
		{
			name:       "reset mid-stream",
			stream:     providertest.Chunks(reset, "Hel"),
			wantEvents: []Event{{Content: "Hel"}},
			wantError:  "connection reset",
			outcome:    "transport",
		},
		{
			name:      "timeout",
			stream:    providertest.Chunks(provider.ErrTimeout),
			wantError: provider.ErrTimeout.Error(),
			outcome:   "timeout",
		},
		{
			name:      "empty reply",
			stream:    providertest.Chunks(nil),
			wantError: provider.ErrEmptyReply.Error(),
			outcome:   "empty",
		},
		{
			name:      "only empty fragments",
			stream:    providertest.Chunks(nil, "", ""),
			wantError: provider.ErrEmptyReply.Error(),
			outcome:   "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, Config{}, seed, tt.stream)
			events := handle(t, f.session, "new question")

			if len(events) != len(tt.wantEvents)+1 {
				t.Fatalf("events = %+v, want %d content + 1 error", events, len(tt.wantEvents))
			}
			for i, want := range tt.wantEvents {
				if events[i] != want {
					t.Errorf("event[%d] = %+v, want %+v", i, events[i], want)
				}
			}
			last := events[len(events)-1]
			if !last.IsError() || !strings.Contains(last.Error, tt.wantError) {
				t.Errorf("terminal event = %+v, want error containing %q", last, tt.wantError)
			}

			if got := f.store.Persists(); got != 0 {
				t.Errorf("Persists = %d, want 0", got)
			}
			assertHistory(t, f.store.Stored(), seed)
			assertHistory(t, f.session.Snapshot(), seed)

			if got := testutil.ToFloat64(f.metrics.Attempts.WithLabelValues(tt.outcome)); got != 1 {
				t.Errorf("%s attempts = %v, want 1", tt.outcome, got)
			}
		})
	}
}

func TestHandle_RetainUnanswered(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{RetainUnanswered: true}, nil,
		providertest.Fail(&provider.StatusError{Code: 503}))
	events := handle(t, f.session, "hello?")

	if len(events) != 1 || events[0].Error != "503 Service Unavailable" {
		t.Fatalf("events = %+v", events)
	}
	assertHistory(t, f.session.Snapshot(), history.History{history.User("hello?")})
	if got := f.store.Persists(); got != 0 {
		t.Errorf("Persists = %d, want 0", got)
	}
}

func TestHandle_RetainUnansweredNotStored(t *testing.T) {
	t.Parallel()

	var calls int
	var mu sync.Mutex
	stream := func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return providertest.Fail(&provider.StatusError{Code: 503})(ctx, req)
		}
		return providertest.Chunks(nil, "fine")(ctx, req)
	}
	f := newFixture(t, Config{RetainUnanswered: true}, nil, stream)

	if events := handle(t, f.session, "lost?"); len(events) != 1 || !events[0].IsError() {
		t.Fatalf("first attempt events = %+v, want one error", events)
	}
	if events := handle(t, f.session, "again"); len(events) != 1 || events[0].Content != "fine" {
		t.Fatalf("second attempt events = %+v", events)
	}

	// The retained question stays in the conversation but not on disk.
	assertHistory(t, f.session.Snapshot(),
		history.History{history.User("lost?"), history.User("again"), history.Assistant("fine")})
	assertHistory(t, f.store.Stored(),
		history.History{history.User("again"), history.Assistant("fine")})

	reqs := f.upstream.Requests()
	if len(reqs) != 2 {
		t.Fatalf("upstream called %d times, want 2", len(reqs))
	}
	var replayed bool
	for _, m := range reqs[1].Messages {
		if m.Content == "lost?" {
			replayed = true
		}
	}
	if !replayed {
		t.Error("retained question not replayed to the upstream")
	}
}

func TestHandle_InvalidArgument(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil, providertest.Chunks(nil, "unused"))
	ch, err := f.session.Handle(context.Background(), "")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Handle(\"\") err = %v, want ErrInvalidArgument", err)
	}
	if ch != nil {
		t.Error("Handle(\"\") returned a channel")
	}
	if n := len(f.upstream.Requests()); n != 0 {
		t.Errorf("upstream called %d times", n)
	}
}

func TestHandle_WhitespacePromptForwarded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil, providertest.Chunks(nil, "?"))
	events := handle(t, f.session, "   ")

	if len(events) != 1 || events[0].Content != "?" {
		t.Fatalf("events = %+v", events)
	}
	reqs := f.upstream.Requests()
	if len(reqs) != 1 {
		t.Fatalf("upstream called %d times, want 1", len(reqs))
	}
	msgs := reqs[0].Messages
	if last := msgs[len(msgs)-1]; last.Content != "   " {
		t.Errorf("user message = %q, want the prompt as typed", last.Content)
	}
	assertHistory(t, f.store.Stored(), history.History{history.User("   "), history.Assistant("?")})
}

func TestHandle_PersistFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil, providertest.Chunks(nil, "Hel", "lo"))
	f.store.SetPersistErr(errors.New("disk full"))

	events := handle(t, f.session, "first")
	if len(events) != 3 {
		t.Fatalf("events = %+v, want 2 content + 1 error", events)
	}
	if got := events[2].Error; got != "reply not saved: disk full" {
		t.Errorf("terminal error = %q", got)
	}

	// The pair stays in memory so the next successful persist writes it.
	pair := history.History{history.User("first"), history.Assistant("Hello")}
	assertHistory(t, f.session.Snapshot(), pair)
	if got := testutil.ToFloat64(f.metrics.Attempts.WithLabelValues(outcomePersistFailed)); got != 1 {
		t.Errorf("persist_failed attempts = %v, want 1", got)
	}

	f.store.SetPersistErr(nil)
	handle(t, f.session, "second")

	want := append(pair.Clone(), history.User("second"), history.Assistant("Hello"))
	assertHistory(t, f.store.Stored(), want)
}

func TestHandle_Cancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	stream := func(ctx context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
		ch := make(chan provider.StreamChunk)
		go func() {
			defer close(ch)
			select {
			case ch <- provider.StreamChunk{Content: "Hel"}:
			case <-ctx.Done():
				return
			}
			close(release)
			<-ctx.Done()
		}()
		return ch, nil
	}
	f := newFixture(t, Config{}, nil, stream)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := f.session.Handle(ctx, "hi")
	if err != nil {
		t.Fatal(err)
	}
	<-release
	cancel()

	for _, ev := range collect(t, ch) {
		if ev.IsError() {
			t.Errorf("unexpected error event after cancellation: %+v", ev)
		}
	}
	if got := f.store.Persists(); got != 0 {
		t.Errorf("Persists = %d, want 0", got)
	}
	if got := f.session.Turns(); got != 0 {
		t.Errorf("Turns = %d, want 0", got)
	}
	if got := testutil.ToFloat64(f.metrics.Attempts.WithLabelValues(outcomeCanceled)); got != 1 {
		t.Errorf("canceled attempts = %v, want 1", got)
	}
}

func TestHandle_ConcurrentCallsSerialize(t *testing.T) {
	t.Parallel()

	// Echo the user message back, split in two fragments.
	echo := func(_ context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
		last := req.Messages[len(req.Messages)-1].Content
		ch := make(chan provider.StreamChunk, 2)
		ch <- provider.StreamChunk{Content: "re:"}
		ch <- provider.StreamChunk{Content: last}
		close(ch)
		return ch, nil
	}
	f := newFixture(t, Config{}, nil, echo)

	const n = 8
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, err := f.session.Handle(context.Background(), fmt.Sprintf("p%d", i))
			if err != nil {
				t.Errorf("Handle: %v", err)
				return
			}
			for range ch { //nolint:revive // drain
			}
		}()
	}
	wg.Wait()

	stored := f.store.Stored()
	if len(stored) != 2*n {
		t.Fatalf("stored turns = %d, want %d", len(stored), 2*n)
	}
	seen := make(map[string]bool)
	for i := 0; i < len(stored); i += 2 {
		u, a := stored[i], stored[i+1]
		if u.Role != provider.MessageRoleUser || a.Role != provider.MessageRoleAssistant {
			t.Fatalf("turns %d/%d roles = %s/%s", i, i+1, u.Role, a.Role)
		}
		if a.Content != "re:"+u.Content {
			t.Errorf("pair %d interleaved: %q answered by %q", i/2, u.Content, a.Content)
		}
		seen[u.Content] = true
	}
	if len(seen) != n {
		t.Errorf("distinct prompts = %d, want %d", len(seen), n)
	}
	if got := f.store.Persists(); got != n {
		t.Errorf("Persists = %d, want %d", got, n)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	seed := history.History{history.User("a"), history.Assistant("b")}

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{}, seed, providertest.Chunks(nil, "x"))
		if err := f.session.Clear(context.Background()); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if got := f.session.Turns(); got != 0 {
			t.Errorf("Turns = %d, want 0", got)
		}
		if got := f.store.Stored(); len(got) != 0 {
			t.Errorf("stored = %+v, want empty", got)
		}
	})

	t.Run("persist failure keeps history", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{}, seed, providertest.Chunks(nil, "x"))
		f.store.SetPersistErr(errors.New("read-only"))
		err := f.session.Clear(context.Background())
		if !errors.Is(err, ErrPersist) {
			t.Fatalf("Clear err = %v, want ErrPersist", err)
		}
		assertHistory(t, f.session.Snapshot(), seed)
	})
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	composer := prompt.NewComposer(prompt.DefaultTemplate(), 5)
	upstream := &providertest.MockProvider{}
	store := historytest.NewStore(nil)

	tests := []struct {
		name string
		cfg  Config
		deps Deps
	}{
		{"no provider", Config{}, Deps{Store: store, Composer: composer}},
		{"no store", Config{}, Deps{Provider: upstream, Composer: composer}},
		{"no composer", Config{}, Deps{Provider: upstream, Store: store}},
		{"negative prior turns", Config{MaxPriorTurns: -1}, Deps{Provider: upstream, Store: store, Composer: composer}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.cfg, tt.deps); err == nil {
				t.Error("New succeeded, want error")
			}
		})
	}
}

func TestSession_Accessors(t *testing.T) {
	t.Parallel()

	seed := history.History{history.User("a"), history.Assistant("b")}
	f := newFixture(t, Config{}, seed, providertest.Chunks(nil, "x"))
	f.upstream.Model = "deepseek-chat"

	if got := f.session.Model(); got != "deepseek-chat" {
		t.Errorf("Model = %q", got)
	}
	if got := f.session.Profile().Name; got != "Sam" {
		t.Errorf("Profile().Name = %q", got)
	}

	snap := f.session.Snapshot()
	snap[0].Content = "mutated"
	if f.session.Snapshot()[0].Content != "a" {
		t.Error("Snapshot aliases session history")
	}
}

func assertHistory(t *testing.T, got, want history.History) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("history = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("turn[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
