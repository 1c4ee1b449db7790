// Package gateway exposes the chat session over HTTP: a server-sent event
// stream, a websocket, health and metrics probes, and the profile and
// history endpoints. It binds to loopback by default and follows the module
// system pattern.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/confidant/internal/core"
	"github.com/flemzord/confidant/internal/history"
	"github.com/flemzord/confidant/internal/profile"
	"github.com/flemzord/confidant/internal/session"
)

// MetricsService is the AppContext key of the shared Prometheus registry.
const MetricsService = "metrics.registry"

func init() {
	core.RegisterModule(&Gateway{})
}

// ChatService is the part of the chat session the gateway serves.
// *session.Session implements it.
type ChatService interface {
	Handle(ctx context.Context, prompt string) (<-chan session.Event, error)
	Snapshot() history.History
	Profile() profile.Profile
	Turns() int
	Model() string
	Clear(ctx context.Context) error
}

// Gateway is the HTTP gateway module. It is a leaf module; nothing
// imports it.
type Gateway struct {
	config   Config
	appCtx   *core.AppContext
	logger   *slog.Logger
	server   *http.Server
	registry *prometheus.Registry
	metrics  *Metrics

	// Resolved lazily at Start() via service registry.
	chat ChatService
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner. It registers the HTTP collectors
// on the shared registry, creating a private one if none was published.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger

	reg, ok := core.ServiceAs[*prometheus.Registry](ctx, MetricsService)
	if !ok {
		reg = prometheus.NewRegistry()
		ctx.RegisterService(MetricsService, reg)
	}
	g.registry = reg

	metrics, err := NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	g.metrics = metrics
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves the chat session from the
// service registry and starts the HTTP server.
func (g *Gateway) Start() error {
	chat, ok := core.ServiceAs[ChatService](g.appCtx, session.ServiceName)
	if !ok {
		return errors.New("gateway: no chat session registered")
	}
	g.chat = chat

	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: g.config.ReadTimeout,
		ReadTimeout:       g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

// Compile-time interface assertions.
var (
	_ core.Module       = (*Gateway)(nil)
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
	_ ChatService       = (*session.Session)(nil)
)
