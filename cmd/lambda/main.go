package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"thumbnailer/internal/config"
	notifications "thumbnailer/internal/events"
	"thumbnailer/internal/log"
	"thumbnailer/internal/resizer"
	"thumbnailer/internal/storage"
	"thumbnailer/internal/worker"
)

type response struct {
	Records   int `json:"records"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("component", "lambda").Logger()
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	objectStore.LimitFetch(cfg.Worker.MaxSourceBytes)

	w := worker.New(objectStore, resizer.New(resizer.WithMaxPixels(cfg.Worker.MaxSourcePixels)), logger, worker.Options{
		Concurrency:   cfg.Worker.Concurrency,
		RecordTimeout: cfg.Worker.RecordTimeout,
	})

	lambda.Start(func(ctx context.Context, ev events.S3Event) (response, error) {
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithDeadline(ctx, deadline.Add(-500*time.Millisecond))
			defer cancel()
		}

		summary := w.HandleBatch(ctx, notifications.FromS3Event(ev))
		return response{
			Records:   len(ev.Records),
			Succeeded: summary.Succeeded,
			Skipped:   summary.Skipped,
			Failed:    summary.Failed,
		}, nil
	})
}
