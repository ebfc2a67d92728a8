// Package app wires the substrate store, ingestion pipeline, query engine,
// and walk engine into a running hartonomousd process.
//
// The App struct owns the full lifecycle: New opens the configured
// substrate store, seeds the atom foundation if requested, and constructs
// every subsystem; Run serves the health/readiness HTTP surface (plus the
// Prometheus scrape endpoint when one is configured) until ctx is
// cancelled; Shutdown tears everything down in order.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AHartTN/hartonomous/internal/config"
	"github.com/AHartTN/hartonomous/internal/health"
	"github.com/AHartTN/hartonomous/internal/ingest"
	"github.com/AHartTN/hartonomous/internal/observe"
	"github.com/AHartTN/hartonomous/internal/query"
	"github.com/AHartTN/hartonomous/internal/resilience"
	"github.com/AHartTN/hartonomous/internal/walk"
	"github.com/AHartTN/hartonomous/pkg/interop"
	"github.com/AHartTN/hartonomous/pkg/substrate"
	"github.com/AHartTN/hartonomous/pkg/substrate/mock"
	"github.com/AHartTN/hartonomous/pkg/substrate/postgres"
)

// App owns all subsystem lifetimes and serves the daemon's HTTP surface.
type App struct {
	cfg        *config.Config
	configPath string

	atoms substrate.AtomStore
	store substrate.Store

	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics

	ingest atomic.Pointer[ingest.Pipeline]
	query  atomic.Pointer[query.Engine]
	walk   atomic.Pointer[walk.Engine]

	handles *interop.Table
	health  *health.Handler
	watcher *config.Watcher

	server        *http.Server
	metricsServer *http.Server

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New, used to inject test doubles.
type Option func(*App)

// WithStore injects an already-open (atoms, store) pair instead of opening
// one from cfg.Substrate. Used by tests to pass an in-process mock.Store.
func WithStore(atoms substrate.AtomStore, store substrate.Store) Option {
	return func(a *App) {
		a.atoms = atoms
		a.store = store
	}
}

// WithConfigPath records the path cfg was loaded from so New can start a
// [config.Watcher] against it: the ingest/query/walk engines then pick up
// edited tunables without a process restart (spec.md §4.14, component A1).
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// New wires an App together: it opens the configured substrate store,
// optionally seeds the atom foundation, and constructs the ingest, query,
// and walk engines against it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if a.store == nil {
		if err := a.openStore(ctx); err != nil {
			return nil, fmt.Errorf("app: open substrate store: %w", err)
		}
	}

	if cfg.Substrate.SeedReference {
		if err := a.seedReference(ctx); err != nil {
			return nil, fmt.Errorf("app: seed atom foundation: %w", err)
		}
	}

	a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "substrate",
	})
	a.metrics = observe.DefaultMetrics()

	a.rebuildEngines(cfg)

	a.handles = interop.NewTable()
	interop.OpenStore = func(ctx context.Context, dsn string) (substrate.AtomStore, substrate.Store, func() error, error) {
		s, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		return s.AtomStore(), s, s.Close, nil
	}
	a.handles.Connect(a.atoms, a.store)

	a.health = health.New(health.Checker{
		Name:  "substrate",
		Check: a.checkSubstrate,
	})

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.onConfigChange)
		if err != nil {
			return nil, fmt.Errorf("app: start config watcher: %w", err)
		}
		a.watcher = w
	}

	return a, nil
}

// rebuildEngines constructs fresh ingest/query/walk engines from cfg's
// tunables against the already-open store and atomically swaps them in,
// so in-flight calls against the old engines run to completion undisturbed.
func (a *App) rebuildEngines(cfg *config.Config) {
	var secondary substrate.Store
	if cfg.Substrate.Driver != config.DriverMock {
		secondary = mock.NewStore()
	}

	pipeline := ingest.New(a.atoms, a.store, ingestConfig(cfg.Ingest)).WithMetrics(a.metrics)
	queryEngine := query.New(a.store, query.Config{
		GravitationalRadius: cfg.Query.GravitationalRadius,
		Secondary:           secondary,
	}).WithMetrics(a.metrics)
	walkEngine := walk.New(a.store, a.atoms, walkConfig(cfg.Walk)).WithMetrics(a.metrics)

	a.ingest.Store(pipeline)
	a.query.Store(queryEngine)
	a.walk.Store(walkEngine)
}

// onConfigChange is the [config.Watcher] callback: it rebuilds the ingest,
// query, and walk engines from the reloaded config's Ingest/Query/Walk
// tunables. The substrate connection itself is never reopened here —
// Substrate/Observability changes require a restart, only the engine
// tunables are hot-reloadable.
func (a *App) onConfigChange(old, newCfg *config.Config) {
	slog.Info("config reloaded, rebuilding engines",
		"max_ngram", newCfg.Ingest.MaxNgram,
		"gravitational_radius", newCfg.Query.GravitationalRadius,
		"walk_energy", newCfg.Walk.Energy,
	)
	a.rebuildEngines(newCfg)
}

// openStore opens the substrate store selected by cfg.Substrate.Driver.
func (a *App) openStore(ctx context.Context) error {
	switch a.cfg.Substrate.Driver {
	case config.DriverMock, "":
		a.atoms = mock.NewAtomStore()
		a.store = mock.NewStore()
		return nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, a.cfg.Substrate.PostgresDSN)
		if err != nil {
			return err
		}
		a.atoms = s.AtomStore()
		a.store = s
		a.closers = append(a.closers, s.Close)
		return nil
	default:
		return fmt.Errorf("app: unknown substrate driver %q", a.cfg.Substrate.Driver)
	}
}

// seedReference seeds the atom foundation with the default Unicode
// scalar-value reference set unless it is already sealed.
func (a *App) seedReference(ctx context.Context) error {
	type sealer interface {
		Sealed(ctx context.Context) (bool, error)
		Seed(ctx context.Context, reference substrate.CodepointIterator) error
	}
	s, ok := a.atoms.(sealer)
	if !ok {
		return fmt.Errorf("app: atom store does not support sealing introspection")
	}
	sealed, err := s.Sealed(ctx)
	if err != nil {
		return err
	}
	if sealed {
		slog.Info("atom foundation already sealed, skipping seed")
		return nil
	}
	slog.Info("seeding atom foundation with the Unicode scalar-value reference set")
	return s.Seed(ctx, substrate.UnicodeScalarValues)
}

// checkSubstrate is the health.Checker probe for the substrate store. It
// runs through the circuit breaker so a degraded database trips the breaker
// rather than piling up slow requests.
func (a *App) checkSubstrate(ctx context.Context) error {
	type sealer interface {
		Sealed(ctx context.Context) (bool, error)
	}
	s, ok := a.atoms.(sealer)
	if !ok {
		return nil
	}
	return a.breaker.Execute(func() error {
		_, err := s.Sealed(ctx)
		return err
	})
}

// Ingest returns the ingestion pipeline (spec.md §4.8, component C8).
func (a *App) Ingest() *ingest.Pipeline { return a.ingest.Load() }

// Query returns the read-path query engine (spec.md §4.10, component C10).
func (a *App) Query() *query.Engine { return a.query.Load() }

// Walk returns the stochastic walk generator (spec.md §4.11, component C11).
func (a *App) Walk() *walk.Engine { return a.walk.Load() }

// Handles returns the interop handle table (spec.md §4.12, component C12).
func (a *App) Handles() *interop.Table { return a.handles }

// Store returns the underlying substrate store.
func (a *App) Store() substrate.Store { return a.store }

// Run starts the health/readiness HTTP server, and the Prometheus scrape
// endpoint if configured, and blocks until ctx is cancelled. Both servers'
// handlers are wrapped with [observe.Middleware] so every request is
// traced, logged, and recorded against HTTPRequestDuration.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Server.ListenAddr == "" {
		slog.Info("no server.listen_addr configured, health endpoints disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	mw := observe.Middleware(a.metrics)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.health.Healthz)
	mux.HandleFunc("/readyz", a.health.Readyz)

	a.server = &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: mw(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if a.cfg.Observability.MetricsAddr != "" {
		a.metricsServer = &http.Server{
			Addr:    a.cfg.Observability.MetricsAddr,
			Handler: mw(promhttp.Handler()),
		}
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
		slog.Info("metrics endpoint running", "metrics_addr", a.cfg.Observability.MetricsAddr)
	}

	slog.Info("app running", "listen_addr", a.cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
		if a.metricsServer != nil {
			_ = a.metricsServer.Shutdown(shutdownCtx)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the config watcher, then runs the registered closers in the
// order they were registered (first registered, first closed). It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if a.watcher != nil {
			a.watcher.Stop()
		}
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

func ingestConfig(c config.IngestConfig) ingest.Config {
	cfg := ingest.DefaultConfig()
	cfg.Ngram.MaxN = c.MaxNgram
	cfg.CooccurrenceWindow = c.CooccurrenceWindow
	cfg.CheckInterval = c.CheckInterval
	return cfg
}

func walkConfig(c config.WalkConfig) walk.Config {
	return walk.Config{
		Energy:      c.Energy,
		Decay:       c.Decay,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		TopP:        c.TopP,
		Alpha:       c.Alpha,
		Beta:        c.Beta,
		StopText:    c.StopText,
	}
}
