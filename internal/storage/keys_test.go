package storage

import (
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"

	"thumbnailer/internal/thumbnail"
)

var fixedTime = time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.UTC)

func TestOriginalKey(t *testing.T) {
	require.Equal(t, "uploads/abc-photo.jpg", OriginalKey("abc", "photo.jpg"))
}

func TestDerivedKey(t *testing.T) {
	cases := []struct {
		original string
		format   thumbnail.Format
		want     string
	}{
		{"uploads/abc-photo.jpg", thumbnail.FormatJPEG, "thumbnails/abc-photo-thumb-2024-03-09T14-05-07-123Z.jpg"},
		{"uploads/abc-photo.png", thumbnail.FormatWebP, "thumbnails/abc-photo-thumb-2024-03-09T14-05-07-123Z.webp"},
		{"uploads/abc-archive.tar.gz", thumbnail.FormatPNG, "thumbnails/abc-archive.tar-thumb-2024-03-09T14-05-07-123Z.png"},
		{"uploads/noext", thumbnail.FormatJPEG, "thumbnails/noext-thumb-2024-03-09T14-05-07-123Z.jpg"},
		{"uploads/", thumbnail.FormatJPEG, "thumbnails/unknown-thumb-2024-03-09T14-05-07-123Z.jpg"},
		{"uploads/.hidden", thumbnail.FormatJPEG, "thumbnails/unknown-thumb-2024-03-09T14-05-07-123Z.jpg"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, DerivedKey(tc.original, tc.format, fixedTime), tc.original)
	}
}

func TestDerivedKeyNamespace(t *testing.T) {
	originals := []string{
		"uploads/x.jpg",
		"uploads/uploads/x.jpg",
		"uploads/a b c.png",
		"uploads/my-thumb-drive.jpg",
	}
	for _, original := range originals {
		key := DerivedKey(original, thumbnail.FormatJPEG, fixedTime)
		require.False(t, strings.HasPrefix(key, UploadsPrefix), key)
		require.True(t, strings.HasPrefix(key, ThumbnailsPrefix), key)
		require.NotEqual(t, original, key)
		require.True(t, IsDerivedKey(key), key)
	}
}

func TestIsDerivedKey(t *testing.T) {
	require.True(t, IsDerivedKey("thumbnails/x-thumb-2024.jpg"))
	require.True(t, IsDerivedKey("uploads/x-thumb-2024-03-09T14-05-07-123Z.jpg"))
	require.False(t, IsDerivedKey("uploads/my-thumb-drive.jpg"))
	require.False(t, IsDerivedKey("uploads/abc-photo.jpg"))
}

func TestResizeConfigMetadataRoundTrip(t *testing.T) {
	configs := []thumbnail.ResizeConfig{
		thumbnail.Default(),
		{Width: 150, Height: 150, Quality: 50, Format: thumbnail.FormatWebP},
		{Width: 2000, Height: 50, Quality: 1, Format: thumbnail.FormatPNG},
	}
	for _, cfg := range configs {
		meta := EncodeResizeConfig(cfg)
		require.Len(t, meta, 4)

		got, found, err := DecodeResizeConfig(meta)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, cfg, got)
	}
}

func TestDecodeResizeConfigCanonicalizedKeys(t *testing.T) {
	meta := map[string]string{
		"Thumbnailwidth":   "150",
		"thumbnailheight":  "120",
		"THUMBNAILQUALITY": "60",
		"Thumbnailformat":  "webp",
		"Originalname":     "a.jpg",
	}
	got, found, err := DecodeResizeConfig(meta)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, thumbnail.ResizeConfig{Width: 150, Height: 120, Quality: 60, Format: thumbnail.FormatWebP}, got)
}

func TestDecodeResizeConfigMissing(t *testing.T) {
	got, found, err := DecodeResizeConfig(map[string]string{MetaOriginalName: "a.jpg"})
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, thumbnail.Default(), got)

	got, found, err = DecodeResizeConfig(nil)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, thumbnail.Default(), got)
}

func TestDecodeResizeConfigInvalid(t *testing.T) {
	_, found, err := DecodeResizeConfig(map[string]string{MetaThumbnailWidth: "huge"})
	require.True(t, found)
	require.True(t, thumbnail.IsValidationError(err))
}

func TestUploadMetadata(t *testing.T) {
	meta := UploadMetadata("photo.jpg", fixedTime, nil)
	require.Equal(t, map[string]string{
		MetaOriginalName: "photo.jpg",
		MetaUploadedAt:   "2024-03-09T14:05:07.123Z",
	}, meta)

	cfg := thumbnail.Default()
	meta = UploadMetadata("fotó.jpg", fixedTime, &cfg)
	require.Equal(t, "fot%C3%B3.jpg", meta[MetaOriginalName])
	require.Equal(t, "300", meta[MetaThumbnailWidth])
	require.Equal(t, "300", meta[MetaThumbnailHeight])
	require.Equal(t, "85", meta[MetaThumbnailQuality])
	require.Equal(t, "jpeg", meta[MetaThumbnailFormat])
}

func TestDerivedMetadata(t *testing.T) {
	cfg := thumbnail.ResizeConfig{Width: 150, Height: 100, Quality: 70, Format: thumbnail.FormatPNG}
	meta := DerivedMetadata("uploads/a.jpg", fixedTime, cfg)
	require.Equal(t, map[string]string{
		MetaOriginalImageKey: "uploads/a.jpg",
		MetaProcessedAt:      "2024-03-09T14:05:07.123Z",
		MetaProcessedBy:      ProcessedByTag,
		MetaThumbnailSize:    "150x100",
		MetaQuality:          "70",
	}, meta)
	require.True(t, IsDerivedMetadata(meta))
	require.True(t, IsDerivedMetadata(map[string]string{"Processedby": ProcessedByTag}))
	require.False(t, IsDerivedMetadata(map[string]string{MetaOriginalName: "a.jpg"}))
}

func TestPublicURL(t *testing.T) {
	require.Equal(t, "https://s3.amazonaws.com/images/uploads/a.jpg", publicURL("s3.amazonaws.com", true, "images", "uploads/a.jpg"))
	require.Equal(t, "http://localhost:9000/images/uploads/a.jpg", publicURL("localhost:9000", false, "images", "uploads/a.jpg"))
	require.Equal(t, "http://minio:9000/images/k", publicURL("http://minio:9000/", true, "images", "k"))
}

func TestClassify(t *testing.T) {
	require.NoError(t, classify(nil, "get object", "b", "k"))

	err := classify(minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}, "get object", "b", "k")
	require.True(t, errors.Is(err, ErrNotFound))
	require.False(t, errors.Is(err, ErrTransient))

	err = classify(minio.ErrorResponse{Code: "SlowDown", StatusCode: 503}, "put object", "b", "k")
	require.True(t, errors.Is(err, ErrTransient))

	err = classify(&net.OpError{Op: "dial", Err: errors.New("connection refused")}, "get object", "b", "k")
	require.True(t, errors.Is(err, ErrTransient))

	err = classify(minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}, "get object", "b", "k")
	require.False(t, errors.Is(err, ErrTransient))
	require.False(t, errors.Is(err, ErrNotFound))
	require.Contains(t, err.Error(), "get object b/k")
}
