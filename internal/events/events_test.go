package events

import (
	"testing"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
)

const minioWebhookPayload = `{
  "EventName": "s3:ObjectCreated:Put",
  "Key": "images/uploads/abc-my+photo.jpg",
  "Records": [
    {
      "eventVersion": "2.0",
      "eventSource": "minio:s3",
      "eventName": "s3:ObjectCreated:Put",
      "s3": {
        "bucket": {"name": "images"},
        "object": {"key": "uploads%2Fabc-my+photo.jpg", "size": 1024}
      }
    },
    {
      "eventName": "s3:ObjectCreated:Put",
      "s3": {"bucket": {"name": "images"}, "object": {"key": "thumbnails/abc-thumb-2024.jpg"}}
    }
  ]
}`

func TestParseBatch(t *testing.T) {
	records, err := ParseBatch([]byte(minioWebhookPayload))
	require.NoError(t, err)
	require.Equal(t, []Record{
		{Bucket: "images", Key: "uploads%2Fabc-my+photo.jpg", EventName: "s3:ObjectCreated:Put"},
		{Bucket: "images", Key: "thumbnails/abc-thumb-2024.jpg", EventName: "s3:ObjectCreated:Put"},
	}, records)
}

func TestParseBatchTolerance(t *testing.T) {
	records, err := ParseBatch([]byte(`{"Records":[{}]}`))
	require.NoError(t, err)
	require.Equal(t, []Record{{}}, records)

	records, err = ParseBatch([]byte(`{}`))
	require.NoError(t, err)
	require.Empty(t, records)

	_, err = ParseBatch([]byte(`not json`))
	require.Error(t, err)
}

func TestFromS3Event(t *testing.T) {
	var ev awsevents.S3Event
	ev.Records = append(ev.Records, awsevents.S3EventRecord{
		EventName: "ObjectCreated:Put",
		S3: awsevents.S3Entity{
			Bucket: awsevents.S3Bucket{Name: "images"},
			Object: awsevents.S3Object{Key: "uploads/abc-a.jpg"},
		},
	})

	require.Equal(t, []Record{{Bucket: "images", Key: "uploads/abc-a.jpg", EventName: "ObjectCreated:Put"}}, FromS3Event(ev))
}

func TestDecodeKey(t *testing.T) {
	cases := map[string]string{
		"uploads/abc-photo.jpg":          "uploads/abc-photo.jpg",
		"uploads/abc-my+summer+trip.jpg": "uploads/abc-my summer trip.jpg",
		"uploads%2Fabc-caf%C3%A9.png":    "uploads/abc-café.png",
		"uploads/abc-a%2Bb.jpg":          "uploads/abc-a+b.jpg",
	}
	for raw, want := range cases {
		got, err := DecodeKey(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	_, err := DecodeKey("uploads/bad%zz")
	require.Error(t, err)
}

func TestIsObjectCreated(t *testing.T) {
	require.True(t, IsObjectCreated("s3:ObjectCreated:Put"))
	require.True(t, IsObjectCreated("ObjectCreated:CompleteMultipartUpload"))
	require.True(t, IsObjectCreated(""))
	require.False(t, IsObjectCreated("s3:ObjectRemoved:Delete"))
}
