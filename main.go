package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"climate-trends-service/cache"
	"climate-trends-service/config"
	"climate-trends-service/handlers"
	"climate-trends-service/metrics"
	"climate-trends-service/services"
	"climate-trends-service/storage"
	"climate-trends-service/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:          "climate-trends-service",
		Short:        "Climate trends and seasonality analytics API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Sweep stale cache entries and start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), envFile)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create database tables and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), envFile)
		},
	})

	var seedFile string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create tables and load seed data, then drop cached reference lists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), envFile, seedFile)
		},
	}
	seedCmd.Flags().StringVar(&seedFile, "file", "", "seed file (defaults to SEED_FILE)")
	root.AddCommand(seedCmd)

	return root
}

// bootstrap loads config and builds the logger shared by every command
func bootstrap(envFile string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Dir:    cfg.LogDir,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newStore returns the Redis store, or an in-process store when Redis is
// not configured or unreachable
func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Store, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("Using in-process cache")
		return cache.NewMemoryStore(), func() {}
	}

	rs, err := cache.NewRedisStore(ctx, cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.CachePrefix,
	})
	if err != nil {
		logger.Warn("Redis not available, running with in-process cache", zap.Error(err))
		return cache.NewMemoryStore(), func() {}
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	return rs, func() { rs.Close() }
}

func runServe(ctx context.Context, envFile string) error {
	cfg, logger, err := bootstrap(envFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting climate trends service")

	repo, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return err
	}
	defer repo.Close()

	store, closeStore := newStore(ctx, cfg, logger)
	defer closeStore()

	versions := cache.Versions{Data: cfg.DataVersion, Algo: cfg.AlgoVersion}
	metrics.SetVersions(versions.Data, versions.Algo)

	// Entries from older versions are unreachable; reclaim them before serving
	removed, err := cache.SweepStale(ctx, store, versions)
	if err != nil {
		logger.Warn("Stale cache sweep failed", zap.Error(err))
	} else {
		metrics.RecordSweep(removed)
		logger.Info("Stale cache sweep complete",
			zap.Int("removed", removed),
			zap.Int("data_version", versions.Data),
			zap.Int("algo_version", versions.Algo))
	}

	service := services.NewClimateService(repo, store, services.Options{
		Versions:      versions,
		ResultTTL:     cfg.CacheTTL,
		OnAnomaly:     metrics.RecordAnomaly,
		OnCacheLookup: metrics.RecordCacheLookup,
	}, logger)

	r := mux.NewRouter()
	handlers.NewClimateHandler(service, logger).Register(r, cfg.RateLimitPerMinute, cfg.TrustProxyHeaders)

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.MetricsHandler()).Methods(http.MethodGet)

	// Wrap handler with middlewares (order: cors, request log, metrics)
	var handler http.Handler = r
	handler = metrics.MetricsMiddleware(handler)
	handler = utils.RequestLogger(logger)(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", utils.RequestIDHeader},
		ExposedHeaders: []string{utils.RequestIDHeader},
	}).Handler(handler)

	server := &http.Server{
		Addr:           cfg.Addr(),
		Handler:        handler,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
			return err
		}
		return nil
	case <-sigCtx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func runMigrate(ctx context.Context, envFile string) error {
	cfg, logger, err := bootstrap(envFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	repo, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		logger.Error("Migration failed", zap.Error(err))
		return err
	}
	logger.Info("Schema is up to date", zap.String("driver", cfg.DatabaseDriver))
	return nil
}

func runSeed(ctx context.Context, envFile, seedFile string) error {
	cfg, logger, err := bootstrap(envFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if seedFile == "" {
		seedFile = cfg.SeedFile
	}
	data, err := storage.LoadSeedFile(seedFile)
	if err != nil {
		logger.Error("Error loading seed file", zap.String("file", seedFile), zap.Error(err))
		return err
	}

	repo, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	if _, err := repo.Seed(ctx, data, logger); err != nil {
		return err
	}

	store, closeStore := newStore(ctx, cfg, logger)
	defer closeStore()
	dropReferenceLists(ctx, store, logger)
	return nil
}

// dropReferenceLists clears the cached locations and metrics lists after a
// seed. Only a shared store reaches the running server.
func dropReferenceLists(ctx context.Context, store cache.Store, logger *zap.Logger) {
	if _, local := store.(*cache.MemoryStore); local {
		logger.Warn("No shared cache reachable, a running server keeps its cached locations and metrics lists until restart")
		return
	}
	if err := services.InvalidateReferenceLists(ctx, store); err != nil {
		logger.Warn("Failed to drop cached reference lists", zap.Error(err))
		return
	}
	logger.Info("Dropped cached reference lists")
}
