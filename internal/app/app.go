// Package app wires the tradeledger subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates the store, the ledger
// manager and its actor, the bridge endpoint and the HTTP server; Run serves
// until the context is cancelled; Shutdown tears down what Run does not own.
//
// For testing, inject a listener, metrics instance or log level via
// functional options. When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tradeledger/internal/bridge"
	"github.com/MrWong99/tradeledger/internal/config"
	"github.com/MrWong99/tradeledger/internal/health"
	"github.com/MrWong99/tradeledger/internal/observe"
	"github.com/MrWong99/tradeledger/internal/session"
	"github.com/MrWong99/tradeledger/internal/storage"
)

const (
	// shutdownTimeout bounds the graceful HTTP shutdown in Run.
	shutdownTimeout = 10 * time.Second

	// reloadTimeout bounds a hot-reload operation sent to the actor.
	reloadTimeout = 5 * time.Second
)

// App owns all subsystem lifetimes of the ledger service.
type App struct {
	cfg *config.Config

	metrics  *observe.Metrics
	logLevel *slog.LevelVar
	listener net.Listener

	store   *storage.FileStore
	mgr     *session.Manager
	actor   *bridge.Actor
	bridge  *bridge.Server
	httpSrv *http.Server

	watchPath    string
	watchEnv     map[string]string
	watchOptions []config.WatcherOption
	watcher      *config.Watcher

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithListener serves on l instead of listening on cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithMetrics injects a metrics instance instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets the app adjust the level of the logger built on lv when
// the config is reloaded.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithConfigWatch enables hot reload of the config file at path. environ
// supplies the TRADELEDGER_* overrides reapplied on every reload.
func WithConfigWatch(path string, environ map[string]string, opts ...config.WatcherOption) Option {
	return func(a *App) {
		a.watchPath = path
		a.watchEnv = environ
		a.watchOptions = opts
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. The listener is bound synchronously so an
// unusable address fails here and not in Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.logLevel == nil {
		a.logLevel = new(slog.LevelVar)
		a.logLevel.Set(observe.ParseLevel(string(cfg.Server.LogLevel)))
	}

	a.store = storage.NewFileStore(cfg.Storage.DataDir,
		storage.WithMaxBackups(cfg.Storage.MaxBackups),
		storage.WithDisplayMode(cfg.Ledger.DisplayMode),
		storage.WithMetrics(a.metrics),
	)
	a.mgr = session.NewManager(session.Config{
		Store:      a.store,
		Mode:       cfg.Ledger.DisplayMode,
		HideLabels: !cfg.Ledger.LabelsEnabled(),
		Metrics:    a.metrics,
	})
	a.actor = bridge.NewActor(a.mgr)
	a.bridge = bridge.NewServer(a.actor,
		bridge.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		bridge.WithServerMetrics(a.metrics),
	)

	mux := http.NewServeMux()
	mux.Handle(bridge.EventsPath, a.bridge)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	health.New(
		health.DirWritable("data_dir", cfg.Storage.DataDir),
		health.Ping("actor", a.actor),
	).Register(mux)

	a.httpSrv = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if a.listener == nil {
		var lc net.ListenConfig
		l, err := lc.Listen(ctx, "tcp", cfg.Server.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("app: listen on %s: %w", cfg.Server.ListenAddr, err)
		}
		a.listener = l
	}

	if a.watchPath != "" {
		wopts := append([]config.WatcherOption{config.WithEnvironment(a.watchEnv)}, a.watchOptions...)
		w, err := config.NewWatcher(a.watchPath, a.Reload, wopts...)
		if err != nil {
			_ = a.listener.Close()
			return nil, fmt.Errorf("app: watch config: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error {
			w.Stop()
			return nil
		})
	}

	slog.Info("app initialised",
		"listen_addr", a.listener.Addr().String(),
		"data_dir", cfg.Storage.DataDir,
		"max_backups", cfg.Storage.MaxBackups,
		"display_mode", cfg.Ledger.DisplayMode.OrDefault(),
		"hot_reload", a.watcher != nil,
	)
	return a, nil
}

// Addr returns the address the HTTP server listens on.
func (a *App) Addr() net.Addr { return a.listener.Addr() }

// Actor returns the actor that owns the ledger manager.
func (a *App) Actor() *bridge.Actor { return a.actor }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and processes ledger operations until ctx is cancelled.
// On cancellation open bridge connections are told to go away, the HTTP
// server drains, and the actor leaves the active namespace. Run returns nil
// after a clean stop.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.actor.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.listener.Addr().String())
		if err := a.httpSrv.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.bridge.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: shutdown http: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable differences between old and new. It is
// the config watcher callback and is safe to call from any goroutine.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged {
		a.logLevel.Set(observe.ParseLevel(string(d.NewLogLevel)))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MaxBackupsChanged {
		a.store.SetMaxBackups(d.NewMaxBackups)
		slog.Info("backup retention changed", "max_backups", d.NewMaxBackups)
	}
	if d.DisplayModeChanged {
		a.store.SetDisplayMode(d.NewDisplayMode)
	}
	if d.DisplayModeChanged || d.DisplayEnabledChanged {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		err := a.actor.Do(ctx, func(ctx context.Context, mgr *session.Manager) error {
			if d.DisplayEnabledChanged {
				mgr.SetDisplayEnabled(d.NewDisplayEnabled)
			}
			if d.DisplayModeChanged {
				return mgr.SetDisplayMode(ctx, d.NewDisplayMode)
			}
			return nil
		})
		cancel()
		if err != nil {
			slog.Warn("failed to apply display settings", "err", err)
		}
	}

	for _, field := range d.RestartRequired {
		slog.Warn("config change requires restart", "field", field)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown runs the registered closers in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
