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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"thumbnailer/internal/cache"
	"thumbnailer/internal/config"
	"thumbnailer/internal/jobs"
	"thumbnailer/internal/log"
	"thumbnailer/internal/notify"
	"thumbnailer/internal/queue"
	"thumbnailer/internal/resizer"
	"thumbnailer/internal/server"
	"thumbnailer/internal/storage"
	"thumbnailer/internal/worker"
)

func main() {
	os.Exit(start())
}

// start returns the process exit code so deferred cleanup always runs
// before the process exits.
func start() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("component", "worker").Logger()
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return 1
	}
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error().Err(err).Msg("invalid worker configuration")
		return 1
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Error().Err(err).Msg("failed to init object store")
		return 1
	}
	objectStore.LimitFetch(cfg.Worker.MaxSourceBytes)

	w := worker.New(objectStore, resizer.New(resizer.WithMaxPixels(cfg.Worker.MaxSourcePixels)), logger, worker.Options{
		Concurrency:   cfg.Worker.Concurrency,
		RecordTimeout: cfg.Worker.RecordTimeout,
	})

	scheduler := jobs.NewScheduler(w, cfg.Worker.StatsSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}
	defer scheduler.Stop(5 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("source", cfg.Worker.Source).
		Str("bucket", objectStore.Bucket()).
		Int("concurrency", cfg.Worker.Concurrency).
		Int64("max_source_bytes", cfg.Worker.MaxSourceBytes).
		Int64("max_source_pixels", cfg.Worker.MaxSourcePixels).
		Msg("resize worker starting")

	if err := run(ctx, cfg, logger, objectStore, w); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped unexpectedly")
		return 1
	}

	s := w.Stats()
	logger.Info().
		Int64("succeeded", s.Succeeded).
		Int64("skipped", s.Skipped).
		Int64("failed", s.Failed).
		Msg("worker exited cleanly")
	return 0
}

func run(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger, objectStore *storage.ObjectStore, w *worker.Worker) error {
	switch cfg.Worker.Source {
	case config.SourceListen:
		return notify.NewListener(objectStore, w, logger).Run(ctx)

	case config.SourceWebhook:
		return serve(ctx, cfg, logger, notify.NewWebhook(w, nil, logger))

	case config.SourceStream:
		client, err := cache.NewStreamClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()

		consumer := queue.NewConsumer(client, cfg.Redis.Stream, cfg.Redis.Group, cfg.Redis.Consumer, cfg.Worker.ClaimInterval, logger, w)
		errCh := make(chan error, 2)
		go func() { errCh <- consumer.Start(ctx) }()
		go func() { errCh <- serve(ctx, cfg, logger, relay(client, cfg, logger)) }()
		return <-errCh

	default:
		return fmt.Errorf("unknown worker source %q", cfg.Worker.Source)
	}
}

// relay exposes the webhook in front of the stream so notifications survive
// a worker restart.
func relay(client *redis.Client, cfg *config.AppConfig, logger zerolog.Logger) *notify.Webhook {
	return notify.NewWebhook(nil, queue.NewProducer(client, cfg.Redis.Stream), logger)
}

func serve(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger, webhook *notify.Webhook) error {
	httpServer := server.NewHTTPServer(cfg, logger, func(router *gin.Engine) {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":    "ok",
				"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
				"version":   cfg.Version,
			})
		})
		webhook.Register(router)
	})

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	return ctx.Err()
}
