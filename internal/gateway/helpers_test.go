package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/confidant/internal/history"
	"github.com/flemzord/confidant/internal/history/historytest"
	"github.com/flemzord/confidant/internal/profile"
	"github.com/flemzord/confidant/internal/prompt"
	"github.com/flemzord/confidant/internal/provider"
	"github.com/flemzord/confidant/internal/provider/providertest"
	"github.com/flemzord/confidant/internal/session"
)

type streamFunc = func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error)

// newTestSession builds a real session over a mock upstream and an
// in-memory store seeded with seed.
func newTestSession(t *testing.T, stream streamFunc, seed history.History) (*session.Session, *historytest.Store) {
	t.Helper()

	store := historytest.NewStore(seed)
	s, err := session.New(session.Config{}, session.Deps{
		Provider: &providertest.MockProvider{StreamFunc: stream, Model: "test-model"},
		Store:    store,
		Composer: prompt.NewComposer(prompt.DefaultTemplate(), 5),
		Profile:  profile.Profile{Name: "Sam", Interests: []string{"homelab"}},
		History:  seed,
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return s, store
}

// newTestGateway wires a gateway around chat without the module lifecycle
// and serves its router from an httptest server.
func newTestGateway(t *testing.T, chat ChatService, auth AuthConfig) (*Gateway, *httptest.Server) {
	t.Helper()

	g := &Gateway{config: Config{Auth: auth}}
	g.config.defaults()
	g.logger = slog.New(slog.DiscardHandler)
	g.registry = prometheus.NewRegistry()
	metrics, err := NewMetrics(g.registry)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	g.metrics = metrics
	g.chat = chat

	srv := httptest.NewServer(g.buildRouter())
	t.Cleanup(srv.Close)
	return g, srv
}

// do sends a request and returns the response with its body read.
func do(t *testing.T, method, url, body string, setup ...func(*http.Request)) (*http.Response, string) {
	t.Helper()

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, rdr)
	if err != nil {
		t.Fatal(err)
	}
	for _, fn := range setup {
		fn(req)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(raw)
}
