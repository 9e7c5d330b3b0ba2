package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/api"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/attach"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/broadcast"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/config"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/engine"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/handlers"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/notify"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/registry"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize the data store: PostgreSQL when configured, SQLite otherwise
	var ds store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
		ds = pgStore
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite initialization failed")
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
		ds = sqliteStore
	}
	defer ds.Close()

	// Initialize Redis (pub/sub transport + unread cache)
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Blob storage and attachment pipeline
	blobs, err := attach.NewDiskBlobStore(cfg.BlobDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("blob store initialization failed")
	}
	pipeline := attach.NewPipeline(ds, blobs, logger)

	// Event transport: local hub always (websocket fan-out), Redis when available
	hub := broadcast.NewHub()
	var pub broadcast.Publisher = hub
	if redisStore != nil {
		pub = broadcast.Tee{hub, broadcast.NewRedisPublisher(redisStore.Client())}
	}

	reg := registry.New(ds, logger)
	broadcaster := broadcast.New(pub, ds, pipeline, redisStore, logger)
	dispatcher := notify.New(ds, reg, logger,
		notify.WithRetry(cfg.NotifyMaxAttempts, cfg.NotifyBackoff),
		notify.WithDeliveredHook(broadcaster.PublishUnread),
	)
	svc := engine.New(ds, reg, pipeline, dispatcher, broadcaster, redisStore, logger)
	defer svc.Close()

	// Create router
	h := handlers.NewHandler(svc, reg, ds, pipeline, blobs, hub, redisStore)
	router := api.NewRouter(logger, h)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting Turbochat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
