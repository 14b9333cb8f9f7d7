// Package events normalizes "object created" notifications from every
// supported source into Records.
package events

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/minio/minio-go/v7/pkg/notification"
)

// Record is one storage notification. Key is kept exactly as delivered;
// use DecodeKey before touching storage.
type Record struct {
	Bucket    string
	Key       string
	EventName string
}

type batch struct {
	Records []notification.Event `json:"Records"`
}

// ParseBatch decodes an S3-style notification document ({"Records":[...]}),
// as sent by S3 and by MinIO webhook and queue targets.
func ParseBatch(data []byte) ([]Record, error) {
	var b batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode notification batch: %w", err)
	}
	return FromNotifications(b.Records), nil
}

func FromNotifications(in []notification.Event) []Record {
	out := make([]Record, 0, len(in))
	for _, ev := range in {
		out = append(out, Record{
			Bucket:    ev.S3.Bucket.Name,
			Key:       ev.S3.Object.Key,
			EventName: ev.EventName,
		})
	}
	return out
}

func FromS3Event(ev awsevents.S3Event) []Record {
	out := make([]Record, 0, len(ev.Records))
	for _, r := range ev.Records {
		out = append(out, Record{
			Bucket:    r.S3.Bucket.Name,
			Key:       r.S3.Object.Key,
			EventName: r.EventName,
		})
	}
	return out
}

// DecodeKey reverses the form encoding applied to object keys in
// notifications: "+" stands for a space and the rest is percent-encoded.
func DecodeKey(raw string) (string, error) {
	key, err := url.PathUnescape(strings.ReplaceAll(raw, "+", " "))
	if err != nil {
		return "", fmt.Errorf("decode object key %q: %w", raw, err)
	}
	return key, nil
}

// IsObjectCreated reports whether name is an object-created event. Records
// without a name are accepted since some relays strip it.
func IsObjectCreated(name string) bool {
	if name == "" {
		return true
	}
	name = strings.TrimPrefix(name, "s3:")
	return strings.HasPrefix(name, "ObjectCreated:")
}
