package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sifterhq/sifter/internal/detect"
	httpmiddleware "github.com/sifterhq/sifter/internal/http"
	"github.com/sifterhq/sifter/internal/logger"
	"github.com/sifterhq/sifter/internal/scorer/heuristic"
	"github.com/sifterhq/sifter/internal/scorer/onnx"
	"github.com/sifterhq/sifter/internal/server"
	"github.com/sifterhq/sifter/internal/store"
	memorystore "github.com/sifterhq/sifter/internal/store/memory"
	postgresstore "github.com/sifterhq/sifter/internal/store/postgres"
	"github.com/sifterhq/sifter/internal/telemetry"
)

type ServerCmd struct {
	// Server configuration
	Listen      string   `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"SIFTER_LISTEN"`
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"*" env:"SIFTER_CORS_ORIGINS"`
	Tracing     bool     `help:"enable tracing and metrics export" default:"false" env:"SIFTER_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"SIFTER_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`

	// Scorer configuration
	ScorerType  string        `help:"scoring backend (heuristic or onnx)" default:"heuristic" env:"SIFTER_SCORER_TYPE" enum:"heuristic,onnx"`
	BundleDir   string        `help:"model bundle directory for the onnx scorer" default:"" env:"SIFTER_BUNDLE_DIR"`
	ScoreRetry  uint          `help:"max attempts per scoring call" default:"3" env:"SIFTER_SCORE_RETRY"`
	TaskTimeout time.Duration `help:"per classification sub-task deadline" default:"10s" env:"SIFTER_TASK_TIMEOUT"`
	Workers     int           `help:"scoring worker pool size (0 = GOMAXPROCS)" default:"0" env:"SIFTER_WORKERS"`

	// Rate limiting
	RateLimit      float64 `help:"per-client requests per second (0 disables limiting)" default:"0" env:"SIFTER_RATE_LIMIT"`
	RateLimitBurst int     `help:"per-client burst allowance" default:"20" env:"SIFTER_RATE_LIMIT_BURST"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"SIFTER_POSTGRES_AUTO_MIGRATE"`
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "sifter-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// Create stores based on store type
	var (
		orgStore  store.OrganizationStore
		userStore store.UserStore
	)

	switch c.StoreType {
	case "postgres":
		poolCfg := &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		}
		pool, err := postgresstore.NewPool(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		orgStore = postgresstore.NewOrganizationStore(pool)
		userStore = postgresstore.NewUserStore(pool)
		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	default:
		orgStore = memorystore.NewOrganizationStore()
		userStore = memorystore.NewUserStore()
		log.Info().Msg("Using in-memory stores")
	}

	// Load the scoring backend once; it is shared read-only by all requests.
	var scorer detect.Scorer
	switch c.ScorerType {
	case "onnx":
		onnxScorer, err := onnx.NewScorer(c.BundleDir)
		if err != nil {
			return fmt.Errorf("failed to load model bundle: %w", err)
		}
		defer onnxScorer.Close()
		scorer = onnxScorer
		log.Info().Str("bundle", c.BundleDir).Msg("Using ONNX scorer")

	default:
		scorer = heuristic.New()
		log.Warn().Msg("Using heuristic scorer. This should only be used in development!")
	}

	if c.ScoreRetry > 1 {
		scorer = detect.WithRetries(scorer, c.ScoreRetry)
	}

	pool := detect.NewPool(c.Workers)
	defer pool.Close()

	orchestrator := detect.NewOrchestrator(scorer, pool, detect.WithTaskTimeout(c.TaskTimeout))

	var limiter *httpmiddleware.RateLimiter
	if c.RateLimit > 0 {
		limiter = httpmiddleware.NewRateLimiter(c.RateLimit, c.RateLimitBurst)
	}

	handler := server.NewServer(orgStore, userStore, orchestrator).Handler(log, c.CORSOrigins, limiter)
	httpServer := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
