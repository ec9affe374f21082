// Package main is the entry point for the reportdeck server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/calade/reportdeck/internal/builder"
	"github.com/calade/reportdeck/internal/config"
	"github.com/calade/reportdeck/internal/gateway"
	"github.com/calade/reportdeck/internal/observability"
	"github.com/calade/reportdeck/internal/session"
	"github.com/calade/reportdeck/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "reportdeck", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Load the ORM gateway contract and index its operations.
	oaIndex := gateway.NewIndex()
	if err := oaIndex.Load(cfg.Gateway.SpecFile, cfg.Gateway.BaseURL); err != nil {
		logger.Error("gateway contract load failed", zap.Error(err))
		return 1
	}
	if err := oaIndex.Verify(gateway.RequiredOperations()...); err != nil {
		logger.Error("gateway contract incomplete", zap.Error(err))
		return 1
	}
	metrics.SetOpenAPIOperationsIndexed(float64(oaIndex.Len()))

	// Step 5: Build the gateway client.
	gw := gateway.NewClient(cfg.Gateway, oaIndex, gateway.WithMetrics(metrics))

	// Step 6: Build the result cache.
	resultCache, cacheCloser, err := buildResultCache(ctx, cfg.Cache, metrics, logger)
	if err != nil {
		logger.Error("result cache initialization failed", zap.Error(err))
		return 1
	}

	// Step 7: Build the session store.
	sessionStore, storeCloser, err := buildSessionStore(ctx, cfg.Sessions.Store, logger)
	if err != nil {
		logger.Error("session store initialization failed", zap.Error(err))
		return 1
	}

	// Step 8: Build the session manager. Its sweeper starts here and stops
	// with Close during shutdown.
	var recommendations map[string][]string
	if cfg.Builder.RecommendationsFile != "" {
		recommendations, err = builder.LoadRecommendations(cfg.Builder.RecommendationsFile)
		if err != nil {
			logger.Error("recommendations file load failed", zap.Error(err))
			return 1
		}
	}
	manager := session.NewManager(gw, sessionStore, resultCache, session.Config{
		IdleTTL:         cfg.Sessions.IdleTTL,
		SweepInterval:   cfg.Sessions.SweepInterval,
		PreviewRowLimit: cfg.Builder.PreviewRowLimit,
		HistoryCapacity: cfg.Builder.HistoryCapacity,
		RefreshInterval: cfg.Builder.DefaultRefreshInterval,
		Recommendations: recommendations,
	}, logger, metrics)

	quick := builder.NewQuickRunner(gw, logger, metrics)

	// Step 9: Build the HTTP router.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)

	readiness := observability.ReadinessChecks{
		OperationsIndexed: func() bool { return oaIndex.Len() > 0 },
		SessionStore:      sessionStore,
		Gateway:           gw,
	}
	if hc, ok := resultCache.(observability.HealthChecker); ok {
		readiness.ResultCache = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Sessions:     manager,
		Gateway:      gw,
		Quick:        quick,
		Metrics:      metrics,
		Ready:        readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 10: Start the HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("gateway_operations", oaIndex.Len()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Close live sessions: stops refresh timers and the idle sweeper.
	manager.Close()

	// Close stores.
	if storeCloser != nil {
		storeCloser()
	}
	if cacheCloser != nil {
		cacheCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildResultCache creates the result cache based on config.
func buildResultCache(ctx context.Context, cfg config.CacheConfig, metrics *observability.Metrics, logger *zap.Logger) (builder.ResultCache, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory result cache", zap.Int("max_entries", cfg.MaxEntries))
		cache := builder.NewMemoryResultCache(cfg.MaxEntries,
			builder.WithEvictionHook(metrics.RecordResultCacheEviction))
		return cache, nil, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("result cache: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("result cache: ping: %w", err)
		}
		logger.Info("using redis result cache", zap.String("addr", addr))
		cache := builder.NewRedisResultCache(client, "results:", cfg.TTL)
		return cache, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported result cache driver: %q", cfg.Driver)
	}
}

// buildSessionStore creates the session store based on config.
func buildSessionStore(ctx context.Context, cfg config.SessionStoreConfig, logger *zap.Logger) (session.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory session store")
		return session.NewMemorySessionStore(), nil, nil
	case "postgres", "":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" && cfg.DSNEnv != "" {
			return nil, nil, fmt.Errorf("session store: %s environment variable not set", cfg.DSNEnv)
		}
		if dsn == "" {
			logger.Warn("session store DSN not configured, using in-memory store")
			return session.NewMemorySessionStore(), nil, nil
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: connect: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("session store: ping: %w", err)
		}

		return session.NewPgSessionStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store driver: %q", cfg.Driver)
	}
}
