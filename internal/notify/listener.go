// Package notify feeds storage notifications to the resize worker.
package notify

import (
	"context"

	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/rs/zerolog"

	"thumbnailer/internal/events"
	"thumbnailer/internal/storage"
	"thumbnailer/internal/worker"
)

var createdEvents = []string{string(notification.ObjectCreatedAll)}

type BatchHandler interface {
	HandleBatch(ctx context.Context, records []events.Record) worker.Summary
}

type NotificationSource interface {
	Listen(ctx context.Context, prefix string, events []string) <-chan notification.Info
}

// Listener subscribes to bucket notifications for uploads and hands each
// delivered batch to the worker.
type Listener struct {
	source  NotificationSource
	handler BatchHandler
	log     zerolog.Logger
}

func NewListener(source NotificationSource, handler BatchHandler, log zerolog.Logger) *Listener {
	return &Listener{source: source, handler: handler, log: log}
}

// Run blocks until ctx is done or the subscription closes.
func (l *Listener) Run(ctx context.Context) error {
	l.log.Info().Str("prefix", storage.UploadsPrefix).Msg("listening for bucket notifications")

	for info := range l.source.Listen(ctx, storage.UploadsPrefix, createdEvents) {
		if info.Err != nil {
			l.log.Error().Err(info.Err).Msg("bucket notification error")
			continue
		}
		if len(info.Records) == 0 {
			continue
		}
		l.handler.HandleBatch(ctx, events.FromNotifications(info.Records))
	}
	return ctx.Err()
}
