package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/radixinsight/analytics/internal/analytics"
	"github.com/radixinsight/analytics/internal/api"
	"github.com/radixinsight/analytics/internal/auth"
	"github.com/radixinsight/analytics/internal/cache"
	"github.com/radixinsight/analytics/internal/config"
	"github.com/radixinsight/analytics/internal/flow"
	"github.com/radixinsight/analytics/internal/ingest"
	"github.com/radixinsight/analytics/internal/logger"
	"github.com/radixinsight/analytics/internal/store"
)

// schemaTimeout bounds the startup schema bootstrap.
const schemaTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	st, err := store.Open(cfg.Store, log)
	if err != nil {
		log.Error("Failed to connect to store", logger.Error(err))
		return 1
	}
	defer func() { _ = st.Close() }()

	return runServer(cfg, log, st)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	configPath := config.GetConfigPath("config.yml")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

// createLogger creates a logger instance from configuration.
func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// runServer wires all components and runs the HTTP server until shutdown.
func runServer(cfg *config.Config, log logger.Logger, st *store.Store) int {
	// Redis is a fast path: the active-flow index and API-key cache. The
	// service stays up without it.
	redisClient, err := cache.NewClient(cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, continuing without cache", logger.Error(err))
		redisClient = nil
	} else {
		defer func() { _ = redisClient.Close() }()
	}

	writer := store.NewEventWriter(st, log)
	flows := store.NewFlowStore(st, log)
	keys := auth.NewKeyAuthenticator(st.DB(), redisClient, log)

	if err := bootstrapSchema(writer, flows, keys); err != nil {
		log.Error("Schema bootstrap failed", logger.Error(err))
		return 1
	}

	tracker := flow.NewTracker(flows, redisClient, cfg.Flow.TTL(), log)
	reaper := flow.NewReaper(tracker, cfg.Flow.ReaperInterval(), log)
	reaper.Start()
	defer reaper.Stop()

	server := api.NewServer(cfg, log, api.Deps{
		Store:   st,
		Keys:    keys,
		Ingest:  ingest.NewService(writer, cfg.Ingest.MaxBatch, log),
		Engine:  analytics.NewEngine(st.DB(), cfg.Query.MaxLimit, log),
		Tracker: tracker,
		Cache:   redisClient,
	})

	log.Info("Analytics service starting",
		logger.Int("port", cfg.Service.Port),
		logger.String("env", cfg.Service.Env),
	)

	if err := server.Run(); err != nil {
		log.Error("Server error", logger.Error(err))
		return 1
	}

	log.Info("Analytics service exited cleanly")
	return 0
}

// bootstrapSchema creates any missing tables so a fresh database can serve
// traffic before the first migrate run.
func bootstrapSchema(writer *store.EventWriter, flows *store.FlowStore, keys *auth.KeyAuthenticator) error {
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	if err := writer.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := flows.EnsureSchema(ctx); err != nil {
		return err
	}
	return keys.EnsureSchema(ctx)
}
