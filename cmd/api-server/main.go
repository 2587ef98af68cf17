package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haneul/wadispatch/internal/api"
	"github.com/haneul/wadispatch/internal/auth"
	"github.com/haneul/wadispatch/internal/config"
	"github.com/haneul/wadispatch/internal/gateway"
	"github.com/haneul/wadispatch/internal/logger"
	"github.com/haneul/wadispatch/internal/media"
	"github.com/haneul/wadispatch/internal/queue"
	"github.com/haneul/wadispatch/internal/storage"
	"github.com/haneul/wadispatch/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var logWriter io.Writer = os.Stdout
	if cfg.Logging.FilePath != "" {
		logWriter = logger.NewFileWriter(logger.FileConfig{
			Path:      cfg.Logging.FilePath,
			MaxSizeMB: cfg.Logging.MaxSizeMB,
			MaxFiles:  cfg.Logging.MaxFiles,
		})
	}
	log := logger.NewWithWriter(cfg.Logging.Level, logWriter)
	log.Info().Msg("starting API server")

	// Connect to database
	ctx := context.Background()
	db, err := storage.NewDB(
		ctx,
		cfg.Database.URL,
		cfg.Database.PoolMin,
		cfg.Database.PoolMax,
		cfg.Database.ConnectTimeout,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	log.Info().Msg("database connection established")

	store := storage.NewStore(db)

	// Credential vault for vendor access tokens
	tokenVault, err := vault.New(cfg.Vault.KeyHex)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize credential vault")
	}

	// Media object store
	mediaStore, err := media.New(media.Config{
		Type:       cfg.Media.Type,
		Path:       cfg.Media.Path,
		S3Bucket:   cfg.Media.S3Bucket,
		S3Prefix:   cfg.Media.S3Prefix,
		S3Endpoint: cfg.Media.S3Endpoint,
		S3Region:   cfg.Media.S3Region,
		PublicURL:  cfg.Media.PublicURL,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize media store")
	}

	// Short-lived dashboard tokens, exchanged for the vendor API key
	jwtSvc := auth.NewJWTService(auth.JWTConfig{
		SigningKey:        cfg.Auth.JWTSigningKey,
		AccessTokenExpiry: cfg.Auth.AccessTokenExpiry,
		Issuer:            cfg.Auth.Issuer,
	})

	// Gateway client, used to verify credentials at onboarding time
	gatewayClient := gateway.NewClient(
		cfg.Gateway.BaseURL,
		cfg.Gateway.APIVersion,
		gateway.NewHTTPClient(cfg.Gateway.Timeout),
	)

	// Optional Redis nudge so the worker picks up new messages immediately
	var notifier api.Notifier
	if cfg.Redis.Addr != "" {
		redisClient, err := queue.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redisClient.Close()
		notifier = queue.NewNotifier(redisClient, log)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("worker nudge enabled")
	} else {
		log.Warn().Msg("redis not configured; workers rely on interval polling alone")
	}

	router := api.NewRouter(api.RouterConfig{
		Store:              store,
		DB:                 db,
		Vault:              tokenVault,
		Media:              mediaStore,
		JWT:                jwtSvc,
		Notifier:           notifier,
		HealthChecker:      gatewayClient,
		WebhookVerifyToken: cfg.Auth.WebhookVerifyToken,
		Log:                log,
	})

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	// Wait for interrupt signal for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	log.Info().Msg("API server stopped")
}
