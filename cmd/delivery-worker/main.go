package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/haneul/wadispatch/internal/config"
	"github.com/haneul/wadispatch/internal/gateway"
	"github.com/haneul/wadispatch/internal/logger"
	"github.com/haneul/wadispatch/internal/queue"
	"github.com/haneul/wadispatch/internal/storage"
	"github.com/haneul/wadispatch/internal/vault"
	"github.com/haneul/wadispatch/internal/worker"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var logWriter io.Writer = os.Stdout
	if cfg.Logging.FilePath != "" {
		logWriter = logger.NewFileWriter(logger.FileConfig{
			Path:      cfg.Logging.FilePath,
			MaxSizeMB: cfg.Logging.MaxSizeMB,
			MaxFiles:  cfg.Logging.MaxFiles,
		})
	}
	log := logger.NewWithWriter(cfg.Logging.Level, logWriter)
	log.Info().Msg("starting delivery worker")

	// Initialize database connection pool.
	ctx := context.Background()
	db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	store := storage.NewStore(db)

	// Credential vault for vendor access tokens.
	tokenVault, err := vault.New(cfg.Vault.KeyHex)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize credential vault")
	}

	// Graph API client.
	gatewayClient := gateway.NewClient(
		cfg.Gateway.BaseURL,
		cfg.Gateway.APIVersion,
		gateway.NewHTTPClient(cfg.Gateway.Timeout),
	)

	// Optional Redis nudge: wakes the worker the moment a message is
	// enqueued instead of waiting out the idle delay.
	var waiter worker.Waiter
	if cfg.Redis.Addr != "" {
		redisClient, err := queue.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redisClient.Close()
		waiter = queue.NewWaiter(redisClient)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("enqueue nudge enabled")
	} else {
		log.Warn().Msg("redis not configured; falling back to interval polling")
	}

	w := worker.New(store, gatewayClient, tokenVault, waiter, worker.OptionsFromConfig(cfg.Worker), log)

	// Run until interrupted; cancellation is checked before every poll and
	// sleep, so shutdown never abandons a committed state transition.
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("delivery worker failed")
	}

	log.Info().Msg("delivery worker stopped")
}
