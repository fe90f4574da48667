// Package app wires all Aikyo subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithMemoryStore, WithLedger, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aikyo-ai/aikyo/internal/budget"
	"github.com/aikyo-ai/aikyo/internal/cache"
	"github.com/aikyo-ai/aikyo/internal/config"
	"github.com/aikyo-ai/aikyo/internal/costsink"
	"github.com/aikyo-ai/aikyo/internal/dialogue"
	"github.com/aikyo-ai/aikyo/internal/dispatch"
	"github.com/aikyo-ai/aikyo/internal/emotion"
	"github.com/aikyo-ai/aikyo/internal/health"
	"github.com/aikyo-ai/aikyo/internal/httpapi"
	"github.com/aikyo-ai/aikyo/internal/observe"
	"github.com/aikyo-ai/aikyo/internal/push"
	"github.com/aikyo-ai/aikyo/internal/recall"
	"github.com/aikyo-ai/aikyo/internal/resilience"
	"github.com/aikyo-ai/aikyo/internal/tenant"
	"github.com/aikyo-ai/aikyo/pkg/kv"
	"github.com/aikyo-ai/aikyo/pkg/memory"
	pgstore "github.com/aikyo-ai/aikyo/pkg/memory/postgres"
	"github.com/aikyo-ai/aikyo/pkg/provider/embeddings"
	"github.com/aikyo-ai/aikyo/pkg/provider/llm"
)

// Providers holds one interface value per provider slot. Nil means the slot
// is not configured and the owning engine stays on its cheap tier (rule table,
// template library, temporal-only recall). Populated by main.go via the
// config registry.
type Providers struct {
	Classifier llm.Provider
	Generative llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and orchestrates the companion response
// pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	tenants    *tenant.MemStore
	metrics    *observe.Metrics
	pgStore    *pgstore.Store
	memories   memory.Store
	ledger     budget.Ledger
	kvstore    kv.Store
	governor   *budget.Governor
	cache      *cache.TwoTier
	recall     *recall.Engine
	emotion    *emotion.Engine
	dialogue   *dialogue.Engine
	costWriter costsink.Writer
	analytics  *costsink.PGWriter
	sink       *costsink.Sink
	dispatcher *dispatch.Dispatcher
	hub        *push.Hub
	gateway    *push.Gateway
	limiter    *httpapi.RateLimiter
	httpSrv    *http.Server

	// level is the dynamic log level, shared with main's slog handler so
	// config hot reload can change verbosity.
	level *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	// stopMaint stops the recall maintenance loops; set in Run.
	stopMaint func()

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMemoryStore injects a memory store instead of connecting to PostgreSQL.
func WithMemoryStore(s memory.Store) Option {
	return func(a *App) { a.memories = s }
}

// WithLedger injects a budget ledger instead of the PostgreSQL one.
func WithLedger(l budget.Ledger) Option {
	return func(a *App) { a.ledger = l }
}

// WithKV injects a shared cache tier instead of the PostgreSQL one.
func WithKV(s kv.Store) Option {
	return func(a *App) { a.kvstore = s }
}

// WithCostWriter injects a metric writer instead of the PostgreSQL one.
// Injected writers do not serve the analytics endpoints.
func WithCostWriter(w costsink.Writer) Option {
	return func(a *App) { a.costWriter = w }
}

// WithMetrics injects a Metrics instance instead of the process-global one.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel shares the dynamic log level with the app so config reloads
// can adjust verbosity.
func WithLogLevel(level *slog.LevelVar) Option {
	return func(a *App) { a.level = level }
}

// nopWriter discards metric batches. Used when no PostgreSQL pool exists and
// no writer was injected, so the sink still drains its queue.
type nopWriter struct{}

func (nopWriter) WriteBatch(context.Context, []costsink.Metric) error { return nil }

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: tenant store seeding,
// PostgreSQL connection and migrations, engine construction, and HTTP routing.
// Nothing processes events until Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Tenant store ──────────────────────────────────────────────────
	tenants, err := tenant.NewMemStore(cfg.TenantList())
	if err != nil {
		return nil, fmt.Errorf("app: init tenants: %w", err)
	}
	a.tenants = tenants

	// ── 2. Storage (memory store, ledger, KV, metric writer) ─────────────
	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 3. Budget governor ───────────────────────────────────────────────
	a.governor = budget.NewGovernor(a.ledger,
		budget.WithDefaultDailyUSD(cfg.Budget.DailyUSDDefault),
		budget.WithOverrunHook(func(tenantID string, component budget.Component, _, _ float64) {
			a.metrics.RecordBudgetOverrun(context.Background(), tenantID, string(component))
		}),
		budget.WithDenialHook(func(tenantID string, component budget.Component) {
			a.metrics.RecordBudgetDenial(context.Background(), tenantID, string(component))
		}),
	)

	// ── 4. Response cache ────────────────────────────────────────────────
	a.cache, err = cache.New(cfg.Cache.LRUSize, a.kvstore, cache.WithTTL(cfg.Cache.TTL()))
	if err != nil {
		return nil, fmt.Errorf("app: init cache: %w", err)
	}

	// ── 5. Engines ───────────────────────────────────────────────────────
	a.recall = recall.New(a.memories, providers.Embeddings, a.governor,
		recall.WithContextK(cfg.Memory.ContextK),
		recall.WithMinImportance(cfg.Memory.CleanupMinImportance),
		recall.WithFloorMult(cfg.Memory.ImportanceFloor),
		recall.WithTenantStore(a.tenants),
	)
	// Paid providers sit behind circuit breakers: a broken backend trips its
	// breaker and the engines fall back to their cheap tier until it heals.
	classifier := providers.Classifier
	if classifier != nil {
		classifier = resilience.NewLLMFallback(classifier, "classifier", resilience.FallbackConfig{})
	}
	generative := providers.Generative
	if generative != nil {
		generative = resilience.NewLLMFallback(generative, "generative", resilience.FallbackConfig{})
	}
	a.emotion = emotion.New(classifier, a.governor)
	a.dialogue = dialogue.New(generative, a.governor)

	// ── 6. Cost and metric sink ──────────────────────────────────────────
	a.sink = costsink.NewSink(a.costWriter,
		costsink.WithOnRecord(func(m costsink.Metric) {
			a.metrics.RecordUsage(context.Background(),
				m.Tenant, m.Component, m.Operation,
				float64(m.LatencyMS)/1000, m.CostUSD, m.CacheHit)
		}),
	)

	// ── 7. Dispatcher + push channel ─────────────────────────────────────
	a.hub = push.NewHub()
	dispatcher := dispatch.New(dispatch.Config{
		Workers:         cfg.Dispatcher.Workers,
		QueueDepth:      cfg.Dispatcher.QueueDepth,
		Deadline:        cfg.Dispatcher.Deadline(),
		MemoryDeadline:  cfg.Dispatcher.MemoryDeadline(),
		EmotionDeadline: cfg.Dispatcher.EmotionDeadline(),
		ContextK:        cfg.Memory.ContextK,
	}, a.emotion, a.dialogue, a.recall, a.cache,
		dispatch.WithPublisher(a.hub),
		dispatch.WithRecorder(a.sink),
	)

	a.gateway = push.NewGateway(a.hub, a.tenants, dispatcher,
		push.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		push.WithSessionOptions(
			push.WithSessionBuffer(cfg.Push.BufferSize),
			push.WithHeartbeat(cfg.Push.Heartbeat()),
			push.WithDropHook(func(n int64) {
				a.metrics.RecordPushDrop(context.Background(), n)
			}),
		),
		push.WithSessionGauge(func(delta int64) {
			a.metrics.RecordPushSessions(context.Background(), delta)
		}),
	)

	// ── 8. HTTP surface ──────────────────────────────────────────────────
	a.limiter = httpapi.NewRateLimiter(cfg.RateLimit.PerMinuteDefault, cfg.RateLimit.Burst, slog.Default())

	checkers := []health.Checker{}
	if a.pgStore != nil {
		checkers = append(checkers, health.Checker{Name: "postgres", Check: a.pgStore.Ping})
	}
	checkers = append(checkers, health.Checker{
		Name: "providers",
		Check: func(context.Context) error {
			if cfg.Providers.Classifier.Name != "" && providers.Classifier == nil {
				return fmt.Errorf("classifier %q configured but not built", cfg.Providers.Classifier.Name)
			}
			if cfg.Providers.Generative.Name != "" && providers.Generative == nil {
				return fmt.Errorf("generative %q configured but not built", cfg.Providers.Generative.Name)
			}
			if cfg.Providers.Embeddings.Name != "" && providers.Embeddings == nil {
				return fmt.Errorf("embeddings %q configured but not built", cfg.Providers.Embeddings.Name)
			}
			return nil
		},
	})
	probes := health.New(checkers...)

	apiOpts := []httpapi.Option{
		httpapi.WithRateLimiter(a.limiter),
		httpapi.WithRealtime(a.gateway),
		httpapi.WithMetrics(promhttp.Handler()),
		httpapi.WithProbes(http.HandlerFunc(probes.Healthz), http.HandlerFunc(probes.Readyz)),
		httpapi.WithMiddleware(observe.Middleware(a.metrics)),
	}
	if a.analytics != nil {
		apiOpts = append(apiOpts, httpapi.WithAnalytics(a.analytics))
	}
	api := httpapi.New(a.tenants, dispatcher, apiOpts...)

	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.dispatcher = dispatcher
	return a, nil
}

// initStorage connects PostgreSQL-backed subsystems, sharing one pool. When
// a test injects all four stores, no connection is made; when only some are
// injected the rest fall back to in-memory implementations if no DSN is
// configured.
func (a *App) initStorage(ctx context.Context) error {
	needPG := a.memories == nil
	if needPG {
		dsn := a.cfg.Postgres.DSN
		if dsn == "" {
			return fmt.Errorf("postgres.dsn is required when no memory store is injected")
		}
		store, err := pgstore.NewStore(ctx, dsn, a.cfg.Memory.EmbeddingDimensions)
		if err != nil {
			return err
		}
		a.pgStore = store
		a.memories = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}

	if a.ledger == nil {
		if a.pgStore != nil {
			l, err := budget.NewPostgresLedger(ctx, a.pgStore.Pool())
			if err != nil {
				return err
			}
			a.ledger = l
		} else {
			a.ledger = budget.NewMemLedger()
		}
	}

	if a.kvstore == nil {
		if a.pgStore != nil {
			s, err := kv.NewPostgres(ctx, a.pgStore.Pool())
			if err != nil {
				return err
			}
			a.kvstore = s
		} else {
			a.kvstore = kv.NewMemStore()
		}
	}

	if a.costWriter == nil {
		if a.pgStore != nil {
			w, err := costsink.NewPGWriter(ctx, a.pgStore.Pool())
			if err != nil {
				return err
			}
			a.costWriter = w
			a.analytics = w
		} else {
			a.costWriter = nopWriter{}
		}
	}

	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the background loops and the HTTP server, then blocks until ctx
// is cancelled or the server fails. When ctx is done, Run returns
// context.Canceled; call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	a.sink.Start()
	a.dispatcher.Start()
	a.stopMaint = a.recall.StartMaintenance(ctx, recall.MaintenanceConfig{
		DecayInterval: a.cfg.Memory.DecayInterval(),
	})
	a.limiter.StartEviction(ctx, time.Minute, 10*time.Minute)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("app running",
		"listen_addr", a.cfg.Server.ListenAddr,
		"tenants", len(a.cfg.Tenants),
		"workers", a.cfg.Dispatcher.Workers,
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: http server: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyConfig applies a hot reload: tenant additions, removals, and changes
// take effect for new requests, and the log level follows the file. Engine
// topology and provider settings require a restart.
func (a *App) ApplyConfig(old, next *config.Config) {
	d := config.Diff(old, next)

	if d.TenantsChanged {
		entries := make(map[string]config.TenantEntry, len(next.Tenants))
		for _, e := range next.Tenants {
			entries[e.ID] = e
		}
		for _, td := range d.TenantChanges {
			switch {
			case td.Removed:
				a.tenants.Remove(td.ID)
				slog.Info("tenant removed", "tenant", td.ID)
			default:
				a.tenants.Upsert(entries[td.ID].Tenant())
				slog.Info("tenant updated", "tenant", td.ID, "added", td.Added)
			}
		}
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	a.cfg = next
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order: HTTP first so no
// new work arrives, then the dispatcher and sink drain, then storage closes.
// It respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		a.dispatcher.Stop()
		if a.stopMaint != nil {
			a.stopMaint()
		}
		a.sink.Stop()

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
