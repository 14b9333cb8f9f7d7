// Package worker turns "object created" notifications for uploads into
// thumbnails. Each record is handled on its own: a failure is logged and
// never aborts the rest of the batch. Nothing is retried, so a successful
// upload does not guarantee a thumbnail.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"thumbnailer/internal/events"
	"thumbnailer/internal/resizer"
	"thumbnailer/internal/storage"
	"thumbnailer/internal/thumbnail"
)

type Store interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
	Head(ctx context.Context, bucket, key string) (storage.StoredObject, error)
	StoreDerived(ctx context.Context, body []byte, originalKey string, cfg thumbnail.ResizeConfig) (storage.StoredObject, error)
}

type Engine interface {
	Resize(ctx context.Context, src []byte, cfg thumbnail.ResizeConfig) (resizer.Result, error)
}

type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

type Result struct {
	Record     events.Record
	Key        string
	Outcome    Outcome
	Reason     string
	DerivedKey string
	Err        error
}

type Summary struct {
	Skipped   int
	Succeeded int
	Failed    int
	Results   []Result
}

type Options struct {
	Concurrency   int
	RecordTimeout time.Duration
}

type Worker struct {
	store  Store
	engine Engine
	log    zerolog.Logger
	opts   Options

	skipped   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

func New(store Store, engine Engine, log zerolog.Logger, opts Options) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = 30 * time.Second
	}
	return &Worker{
		store:  store,
		engine: engine,
		log:    log,
		opts:   opts,
	}
}

// HandleBatch processes every record and waits for all of them.
func (w *Worker) HandleBatch(ctx context.Context, records []events.Record) Summary {
	results := make([]Result, len(records))

	var g errgroup.Group
	g.SetLimit(w.opts.Concurrency)
	for i, rec := range records {
		g.Go(func() error {
			results[i] = w.Process(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{Results: results}
	for _, res := range results {
		switch res.Outcome {
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeSucceeded:
			summary.Succeeded++
		case OutcomeFailed:
			summary.Failed++
		}
	}
	w.log.Info().
		Int("records", len(records)).
		Int("succeeded", summary.Succeeded).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("notification batch processed")
	return summary
}

// Process runs one record through filter, fetch, config recovery, resize
// and store. It always returns a terminal outcome.
func (w *Worker) Process(ctx context.Context, rec events.Record) (res Result) {
	res = Result{Record: rec}
	logger := w.log.With().Str("bucket", rec.Bucket).Str("raw_key", rec.Key).Logger()

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("panic: %v", r)
		}
		w.record(logger, res)
	}()

	key, reason := Filter(rec)
	res.Key = key
	if reason != "" {
		res.Outcome = OutcomeSkipped
		res.Reason = reason
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.RecordTimeout)
	defer cancel()

	source, err := w.store.Fetch(ctx, rec.Bucket, key)
	if err != nil {
		return failed(res, "fetch source", err)
	}

	cfg, derived := w.recoverConfig(ctx, logger, rec.Bucket, key)
	if derived {
		res.Outcome = OutcomeSkipped
		res.Reason = "object is a derived thumbnail"
		return res
	}

	rendered, err := w.resize(ctx, source, cfg)
	if err != nil {
		return failed(res, "resize", err)
	}

	stored, err := w.store.StoreDerived(ctx, rendered.Body, key, cfg)
	if err != nil {
		return failed(res, "store thumbnail", err)
	}

	res.Outcome = OutcomeSucceeded
	res.DerivedKey = stored.Key
	logger.Info().
		Str("key", key).
		Str("thumbnail_key", stored.Key).
		Str("config", cfg.String()).
		Int("width", rendered.Width).
		Int("height", rendered.Height).
		Int("source_bytes", len(source)).
		Int("thumbnail_bytes", len(rendered.Body)).
		Msg("thumbnail stored")
	return res
}

// resize runs the engine on its own goroutine so the record gives up when
// its budget runs out even if the engine does not watch ctx. An abandoned
// render finishes in the background and its result is dropped.
func (w *Worker) resize(ctx context.Context, src []byte, cfg thumbnail.ResizeConfig) (resizer.Result, error) {
	type rendered struct {
		res resizer.Result
		err error
	}
	done := make(chan rendered, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- rendered{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := w.engine.Resize(ctx, src, cfg)
		done <- rendered{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil && ctx.Err() != nil {
			return resizer.Result{}, ctx.Err()
		}
		return out.res, out.err
	case <-ctx.Done():
		return resizer.Result{}, ctx.Err()
	}
}

// Filter returns the decoded key and, when the record must not be
// processed, the reason for skipping it.
func Filter(rec events.Record) (key, reason string) {
	if !events.IsObjectCreated(rec.EventName) {
		return "", "not an object-created event"
	}
	if rec.Bucket == "" || rec.Key == "" {
		return "", "record is missing bucket or key"
	}

	key, err := events.DecodeKey(rec.Key)
	if err != nil {
		return "", "object key cannot be decoded"
	}

	switch {
	case !strings.HasPrefix(key, storage.UploadsPrefix):
		return key, "object is outside " + storage.UploadsPrefix
	case strings.HasSuffix(key, storage.TempSuffix):
		return key, "temporary object"
	case storage.IsDerivedKey(key):
		return key, "object is a derived thumbnail"
	}
	return key, ""
}

// recoverConfig reads the resize config embedded in the object's metadata.
// Any problem falls back to the defaults; it never fails the record.
func (w *Worker) recoverConfig(ctx context.Context, logger zerolog.Logger, bucket, key string) (cfg thumbnail.ResizeConfig, derived bool) {
	obj, err := w.store.Head(ctx, bucket, key)
	if err != nil {
		logger.Warn().Err(err).Msg("object metadata unavailable, using default config")
		return thumbnail.Default(), false
	}
	if storage.IsDerivedMetadata(obj.Metadata) {
		return thumbnail.ResizeConfig{}, true
	}

	cfg, found, err := storage.DecodeResizeConfig(obj.Metadata)
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("invalid resize metadata, using default config")
		return thumbnail.Default(), false
	case !found:
		logger.Debug().Msg("no resize metadata, using default config")
	}
	return cfg, false
}

func failed(res Result, step string, err error) Result {
	res.Outcome = OutcomeFailed
	res.Reason = step
	res.Err = fmt.Errorf("%s: %w", step, err)
	return res
}

func (w *Worker) record(logger zerolog.Logger, res Result) {
	switch res.Outcome {
	case OutcomeSkipped:
		w.skipped.Add(1)
		logger.Debug().Str("key", res.Key).Str("reason", res.Reason).Msg("record skipped")
	case OutcomeSucceeded:
		w.succeeded.Add(1)
	case OutcomeFailed:
		w.failed.Add(1)
		event := logger.Error()
		if errors.Is(res.Err, context.DeadlineExceeded) {
			event = event.Dur("budget", w.opts.RecordTimeout)
		}
		event.Err(res.Err).Str("key", res.Key).Msg("thumbnail generation failed")
	}
}

type Stats struct {
	Skipped   int64
	Succeeded int64
	Failed    int64
}

// Stats returns the outcome counters accumulated since start.
func (w *Worker) Stats() Stats {
	return Stats{
		Skipped:   w.skipped.Load(),
		Succeeded: w.succeeded.Load(),
		Failed:    w.failed.Load(),
	}
}
