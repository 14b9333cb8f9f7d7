package storage

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/minio/minio-go/v7"
)

var (
	ErrNotFound  = errors.New("object not found")
	ErrTransient = errors.New("transient storage failure")
	// ErrObjectTooLarge is returned by Fetch when the object is over the
	// configured limit. It is not transient.
	ErrObjectTooLarge = errors.New("object exceeds the fetch limit")
)

var transientCodes = map[string]struct{}{
	"SlowDown":           {},
	"RequestTimeout":     {},
	"InternalError":      {},
	"ServiceUnavailable": {},
}

// classify maps backend failures onto ErrNotFound and ErrTransient. Nothing
// is retried here; callers decide what to do with a transient error.
func classify(err error, op, bucket, key string) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s/%s: %w: %w", op, bucket, key, ErrNotFound, err)
	case isTransient(resp, err):
		return fmt.Errorf("%s %s/%s: %w: %w", op, bucket, key, ErrTransient, err)
	}
	return fmt.Errorf("%s %s/%s: %w", op, bucket, key, err)
}

func isTransient(resp minio.ErrorResponse, err error) bool {
	if _, ok := transientCodes[resp.Code]; ok {
		return true
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
