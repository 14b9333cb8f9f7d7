package notify

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"thumbnailer/internal/events"
)

const maxEventBody = 1 << 20

type Enqueuer interface {
	Enqueue(ctx context.Context, payload []byte) (string, error)
}

// Webhook receives S3-style notification documents over HTTP. With a queue
// configured the document is appended to it; otherwise it is processed
// inline before answering.
type Webhook struct {
	handler BatchHandler
	queue   Enqueuer
	log     zerolog.Logger
}

func NewWebhook(handler BatchHandler, queue Enqueuer, log zerolog.Logger) *Webhook {
	return &Webhook{handler: handler, queue: queue, log: log}
}

func (w *Webhook) Register(router *gin.Engine) {
	router.POST("/events", w.Receive)
}

func (w *Webhook) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxEventBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	records, err := events.ParseBatch(body)
	if err != nil {
		w.log.Warn().Err(err).Msg("rejected notification document")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification document"})
		return
	}

	if w.queue != nil {
		id, err := w.queue.Enqueue(c.Request.Context(), body)
		if err != nil {
			w.log.Error().Err(err).Int("records", len(records)).Msg("enqueue notification failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue unavailable"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true, "id": id, "records": len(records)})
		return
	}

	summary := w.handler.HandleBatch(c.Request.Context(), records)
	c.JSON(http.StatusOK, gin.H{
		"records":   len(records),
		"succeeded": summary.Succeeded,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	})
}
