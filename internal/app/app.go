package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/events"
	"github.com/specialistvlad/nodegrid/internal/graph"
	"github.com/specialistvlad/nodegrid/internal/metrics"
	"github.com/specialistvlad/nodegrid/internal/plugin"
	"github.com/specialistvlad/nodegrid/internal/pluginstore/postgres"
	"github.com/specialistvlad/nodegrid/internal/pluginstore/sqlite"
	"github.com/specialistvlad/nodegrid/internal/registry"
	"github.com/specialistvlad/nodegrid/internal/script"
)

// metricsName is the expvar variable holding execution counters.
const metricsName = "nodegrid"

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx    context.Context
	outW   io.Writer
	logger *slog.Logger
	config *Config

	registry *registry.Registry
	engine   script.Engine
	store    plugin.Store
	plugins  *plugin.Manager

	metrics    *metrics.Collector
	publisher  *events.Publisher
	httpServer *http.Server
	closers    []io.Closer
}

// NewApp is the constructor for the main application. It builds the
// logger, registers the built-in modules, opens the plugin store and loads
// the plugin catalogue. A registry that fails validation is a programming
// error and panics.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	if len(modules) == 0 {
		modules = coreModules()
	}
	reg := registry.New(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "kinds", reg.Kinds())

	if err := reg.ValidateRegistry(ctx); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	var engineOpts []script.HCLOption
	if cfg.ScriptTimeout > 0 {
		engineOpts = append(engineOpts, script.WithTimeout(cfg.ScriptTimeout))
	}

	a := &App{
		ctx:      ctx,
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		engine:   script.NewHCLEngine(engineOpts...),
		metrics:  metrics.Published(metricsName),
	}

	if err := a.openStore(); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.plugins = plugin.NewManager(a.store, a.engine)
	if err := a.plugins.Load(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to load plugins: %w", err)
	}

	if cfg.EventsURL != "" {
		pub, err := events.Dial(ctx, events.DialConfig{
			URL:                cfg.EventsURL,
			Namespace:          cfg.EventsNamespace,
			InsecureSkipVerify: cfg.EventsInsecure,
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to connect event sink: %w", err)
		}
		a.publisher = pub
	}

	a.healthCheckServer()
	return a, nil
}

// openStore selects the plugin store backend. Database backends import the
// manifests found in PluginsPath, so a fresh database starts populated.
func (a *App) openStore() error {
	logger := ctxlog.FromContext(a.ctx)

	switch a.config.PluginStore {
	case StoreSQLite:
		s, err := sqlite.Open(a.ctx, a.config.DatabaseURL)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, s)
	case StorePostgres:
		s, err := postgres.Open(a.ctx, a.config.DatabaseURL)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, s)
	default:
		a.store = plugin.NewDirStore(a.config.PluginsPath)
		logger.Debug("Using directory plugin store.", "dir", a.config.PluginsPath)
		return nil
	}

	logger.Debug("Using database plugin store.", "backend", a.config.PluginStore)
	if a.config.PluginsPath != "" {
		if _, err := plugin.Import(a.ctx, a.store, plugin.NewDirStore(a.config.PluginsPath)); err != nil {
			return fmt.Errorf("failed to import plugin manifests: %w", err)
		}
	}
	return nil
}

// observers returns the graph observers active for this app.
func (a *App) observers() []graph.Option {
	opts := []graph.Option{graph.WithObserver(a.metrics)}
	if a.publisher != nil {
		opts = append(opts, graph.WithObserver(a.publisher))
	}
	return opts
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Plugins returns the plugin manager.
func (a *App) Plugins() *plugin.Manager {
	return a.plugins
}
