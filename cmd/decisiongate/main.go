package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	dghttp "github.com/decisiongate/decisiongate/internal/adapter/http"
	"github.com/decisiongate/decisiongate/internal/adapter/memory"
	dgnats "github.com/decisiongate/decisiongate/internal/adapter/nats"
	"github.com/decisiongate/decisiongate/internal/adapter/otel"
	"github.com/decisiongate/decisiongate/internal/adapter/postgres"
	"github.com/decisiongate/decisiongate/internal/adapter/ristretto"
	"github.com/decisiongate/decisiongate/internal/adapter/ws"
	"github.com/decisiongate/decisiongate/internal/config"
	"github.com/decisiongate/decisiongate/internal/logger"
	"github.com/decisiongate/decisiongate/internal/middleware"
	"github.com/decisiongate/decisiongate/internal/port/database"
	"github.com/decisiongate/decisiongate/internal/resilience"
	"github.com/decisiongate/decisiongate/internal/scoring"
	"github.com/decisiongate/decisiongate/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"store_driver", cfg.Store.Driver,
		"pending_ttl", cfg.Routing.PendingTTL,
		"sweep_interval", cfg.Routing.SweepInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	shutdownTelemetry, err := otel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	var metrics *otel.Metrics
	if cfg.Telemetry.Enabled {
		metrics, err = otel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// --- Store ---
	var store database.Store
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")
		store = postgres.NewStore(pool)
	case "memory":
		slog.Warn("using in-memory store, all state is lost on restart")
		store = memory.NewStore()
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	// --- NATS executor ---
	exec, err := dgnats.Connect(cfg.NATS.URL, cfg.Executor.RequestTimeout)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer exec.Close()

	// --- Workflow config cache ---
	workflowCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer workflowCache.Close()

	// --- Services ---
	hub := ws.NewHub()
	breaker := resilience.NewBreaker(cfg.Executor.MaxFailures, cfg.Executor.BreakerTimeout)

	registry := service.NewRegistry(store, workflowCache, cfg.Cache.WorkflowTTL, cfg.Routing.StoreTimeout, log)
	router := service.NewRouter(registry, store, exec, breaker,
		scoring.JSONExtractor{}, scoring.Score, hub, metrics,
		cfg.Routing.PendingTTL, cfg.Routing.StoreTimeout, log)
	approvals := service.NewApprovals(store, registry, exec, breaker, hub, metrics, cfg.Routing.StoreTimeout, log)
	hist := service.NewHistory(store, cfg.Routing.StoreTimeout, log)
	sweeper := service.NewSweeper(store, hub, metrics, cfg.Routing, log)

	// --- HTTP ---
	rateLimiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := rateLimiter.StartCleanup(time.Minute, 10*time.Minute)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(dghttp.CORS(cfg.Server.CORSOrigin))
	r.Use(dghttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(dghttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(rateLimiter.Handler)
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	// Duplicate submissions replay the original verdict via the
	// idempotency KV; the engine degrades gracefully without it.
	if cfg.NATS.IdempotencyBucket != "" {
		kv, err := exec.IdempotencyKV(ctx, cfg.NATS.IdempotencyBucket, cfg.NATS.IdempotencyTTL)
		if err != nil {
			slog.Warn("idempotency bucket unavailable, duplicate submissions will not be deduplicated", "error", err)
		} else {
			r.Use(middleware.Idempotency(kv))
		}
	}

	handlers := dghttp.NewHandlers(registry, router, approvals, hist, hub)
	dghttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := sweeper.Run(ctx); err != nil && err != context.Canceled {
			return fmt.Errorf("sweeper: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
