// Package app assembles confidant from its configuration: the configured
// modules, the shared services they discover each other through, and the
// chat session at the center.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/confidant/internal/config"
	"github.com/flemzord/confidant/internal/core"
	"github.com/flemzord/confidant/internal/cron"
	"github.com/flemzord/confidant/internal/fsutil"
	"github.com/flemzord/confidant/internal/gateway"
	"github.com/flemzord/confidant/internal/history"
	"github.com/flemzord/confidant/internal/profile"
	"github.com/flemzord/confidant/internal/prompt"
	"github.com/flemzord/confidant/internal/provider"
	"github.com/flemzord/confidant/internal/security"
	"github.com/flemzord/confidant/internal/session"
	"github.com/flemzord/confidant/internal/telemetry"
	openaicompat "github.com/flemzord/confidant/modules/provider/openai_compatible"
)

// Params configures how the application is assembled.
type Params struct {
	// ConfigPath is an explicit config file. Empty searches the standard
	// locations and falls back to built-in defaults.
	ConfigPath string

	// LogLevel overrides the configured log level when set.
	LogLevel string

	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer

	// Version is reported in traces.
	Version string
}

// Runtime is an assembled application that has not been started.
type Runtime struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	Redactor   *security.Redactor
	Registry   *prometheus.Registry
	App        *core.App
	Session    *session.Session
	Store      history.Store

	// ProfilePath is the resolved location of the profile document.
	ProfilePath string
}

// LoadConfig resolves, loads and validates the configuration. It returns
// the path used, or "" when no file exists and defaults apply.
func LoadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindPath(explicit)
	if errors.Is(err, config.ErrNotFound) {
		cfg := config.Default()
		return cfg, "", config.Validate(cfg)
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Build loads configuration and modules, then wires the chat session.
// Nothing is started; call Close when done, or Serve to run.
func Build(ctx context.Context, p Params) (*Runtime, error) {
	cfg, cfgPath, err := LoadConfig(p.ConfigPath)
	if err != nil {
		return nil, err
	}

	levelName := cfg.LogLevel
	if p.LogLevel != "" {
		levelName = p.LogLevel
	}
	level, err := config.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	out := p.LogOutput
	if out == nil {
		out = os.Stderr
	}

	redactor := security.NewRedactor()
	logger := security.NewLogger(out, level, redactor)
	if cfgPath == "" {
		logger.Info("no configuration file found, using defaults")
	} else {
		logger.Debug("configuration loaded", "path", cfgPath)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	appCtx := core.NewAppContext(logger, cfg.DataDir).WithModuleConfigs(cfg.Modules)
	scheduler := cron.NewScheduler(logger.With("component", "cron"))
	appCtx.RegisterService(security.RedactorService, redactor)
	appCtx.RegisterService(gateway.MetricsService, registry)
	appCtx.RegisterService(cron.ServiceName, scheduler)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:      cfg,
		ConfigPath:  cfgPath,
		Logger:      logger,
		Redactor:    redactor,
		Registry:    registry,
		App:         application,
		ProfilePath: fsutil.Resolve(cfg.DataDir, cfg.Session.ProfilePath),
	}
	if err := rt.wireSession(ctx, appCtx); err != nil {
		application.Close()
		return nil, err
	}

	// Attached last so scheduled jobs stop before the stores they use.
	application.Attach(scheduler)
	return rt, nil
}

// wireSession builds the chat session from the loaded modules and
// publishes it for the gateway.
func (rt *Runtime) wireSession(ctx context.Context, appCtx *core.AppContext) error {
	store, ok := core.ServiceAs[history.Store](appCtx, history.ServiceName)
	if !ok {
		return errors.New("app: no history module registered a store")
	}
	upstream, ok := core.ServiceAs[provider.Provider](appCtx, openaicompat.ServiceName)
	if !ok {
		return errors.New("app: no provider module registered an upstream")
	}

	tmpl := prompt.DefaultTemplate()
	if path := rt.Config.Session.Template; path != "" {
		loaded, err := prompt.LoadTemplate(fsutil.Resolve(rt.Config.DataDir, path))
		if err != nil {
			return err
		}
		tmpl = loaded
	}

	sess, err := session.New(session.Config{
		MaxPriorTurns:    rt.Config.Session.MaxPriorTurns,
		RetainUnanswered: rt.Config.Session.RetainUnanswered,
	}, session.Deps{
		Provider: upstream,
		Store:    store,
		Composer: prompt.NewComposer(tmpl, rt.Config.Session.HistoryWindow),
		Profile:  profile.Load(rt.ProfilePath, rt.Logger),
		History:  history.LoadOrEmpty(ctx, store, rt.Logger),
		Metrics:  session.NewMetrics(rt.Registry),
		Logger:   rt.Logger,
	})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	rt.Store = store
	rt.Session = sess
	appCtx.RegisterService(session.ServiceName, sess)
	rt.Logger.Info("chat session ready",
		"model", upstream.ModelName(),
		"turns", sess.Turns(),
	)
	return nil
}

// Close releases module resources without starting anything.
func (rt *Runtime) Close() {
	rt.App.Close()
}

// Serve starts tracing and every module, then blocks until ctx is done.
func (rt *Runtime) Serve(ctx context.Context, version string) error {
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    rt.Config.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   rt.Config.Telemetry.OTLPEndpoint,
		Insecure:       rt.Config.Telemetry.Insecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			rt.Logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	return rt.App.Run(ctx)
}
