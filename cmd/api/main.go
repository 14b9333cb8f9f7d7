package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"thumbnailer/internal/config"
	"thumbnailer/internal/handlers"
	"thumbnailer/internal/log"
	"thumbnailer/internal/server"
	"thumbnailer/internal/service"
	"thumbnailer/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingBucket) {
			logger.Fatal().Err(err).Msg("set BUCKET_NAME or THUMBNAILER_STORAGE_BUCKET")
		}
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if cfg.Storage.EnsureBucket {
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure bucket failed")
		}
	}

	uploads := service.NewUploadService(objectStore, cfg.Upload, logger)
	handlerSet := handlers.NewHandlerSet(logger, uploads, cfg)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet.Register)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	logger.Info().
		Str("bucket", objectStore.Bucket()).
		Str("environment", cfg.Environment).
		Msg("upload service ready")

	waitForShutdown(logger, httpServer)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server exited cleanly")
}
