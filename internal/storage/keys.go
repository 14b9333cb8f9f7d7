package storage

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"thumbnailer/internal/thumbnail"
)

const (
	UploadsPrefix    = "uploads/"
	ThumbnailsPrefix = "thumbnails/"
	TempSuffix       = ".tmp"

	derivedMarker = "-thumb-"
)

// Object metadata keys. The uploader writes them and the worker reads them
// back, so both sides must agree on these exact names.
const (
	MetaThumbnailWidth   = "thumbnailWidth"
	MetaThumbnailHeight  = "thumbnailHeight"
	MetaThumbnailQuality = "thumbnailQuality"
	MetaThumbnailFormat  = "thumbnailFormat"
	MetaOriginalName     = "originalName"
	MetaUploadedAt       = "uploadedAt"

	MetaOriginalImageKey = "originalImageKey"
	MetaProcessedAt      = "processedAt"
	MetaProcessedBy      = "processedBy"
	MetaThumbnailSize    = "thumbnailSize"
	MetaQuality          = "quality"

	ProcessedByTag = "thumbnail-worker"
)

var configMetaKeys = map[string]string{
	thumbnail.FieldWidth:   MetaThumbnailWidth,
	thumbnail.FieldHeight:  MetaThumbnailHeight,
	thumbnail.FieldQuality: MetaThumbnailQuality,
	thumbnail.FieldFormat:  MetaThumbnailFormat,
}

var derivedPattern = regexp.MustCompile(`-thumb-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-\d{3}Z(\.[A-Za-z0-9]+)?$`)

func OriginalKey(id, filename string) string {
	return UploadsPrefix + id + "-" + filename
}

// DerivedKey names the thumbnail of originalKey rendered at the given time:
// thumbnails/<base>-thumb-<timestamp>.<ext>.
func DerivedKey(originalKey string, format thumbnail.Format, at time.Time) string {
	return fmt.Sprintf("%s%s%s%s.%s", ThumbnailsPrefix, baseName(originalKey), derivedMarker, keyTimestamp(at), format.Extension())
}

// IsDerivedKey reports whether key was produced by DerivedKey. Matching the
// full timestamped suffix keeps uploads such as "my-thumb-drive.jpg" eligible.
func IsDerivedKey(key string) bool {
	return strings.HasPrefix(key, ThumbnailsPrefix) || derivedPattern.MatchString(key)
}

func keyTimestamp(at time.Time) string {
	ts := at.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(ts)
}

func baseName(key string) string {
	name := key[strings.LastIndex(key, "/")+1:]
	if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
		name = name[:i]
	}
	if name == "" {
		return "unknown"
	}
	return name
}

func timestamp(at time.Time) string {
	return at.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// EncodeResizeConfig flattens cfg into object metadata entries.
func EncodeResizeConfig(cfg thumbnail.ResizeConfig) map[string]string {
	fields := cfg.Fields()
	meta := make(map[string]string, len(fields))
	for field, value := range fields {
		meta[configMetaKeys[field]] = value
	}
	return meta
}

// DecodeResizeConfig recovers a config from object metadata. found is false
// when none of the thumbnail keys are present; the default config is
// returned in that case.
func DecodeResizeConfig(meta map[string]string) (cfg thumbnail.ResizeConfig, found bool, err error) {
	raw := make(map[string]string, len(configMetaKeys))
	for field, key := range configMetaKeys {
		if value, ok := lookup(meta, key); ok {
			raw[field] = value
		}
	}
	if len(raw) == 0 {
		return thumbnail.Default(), false, nil
	}

	cfg, err = thumbnail.ValidateStrings(raw)
	if err != nil {
		return thumbnail.ResizeConfig{}, true, err
	}
	return cfg, true, nil
}

func UploadMetadata(filename string, at time.Time, cfg *thumbnail.ResizeConfig) map[string]string {
	meta := map[string]string{
		MetaOriginalName: headerSafe(filename),
		MetaUploadedAt:   timestamp(at),
	}
	if cfg != nil {
		for k, v := range EncodeResizeConfig(*cfg) {
			meta[k] = v
		}
	}
	return meta
}

func DerivedMetadata(originalKey string, at time.Time, cfg thumbnail.ResizeConfig) map[string]string {
	return map[string]string{
		MetaOriginalImageKey: headerSafe(originalKey),
		MetaProcessedAt:      timestamp(at),
		MetaProcessedBy:      ProcessedByTag,
		MetaThumbnailSize:    fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		MetaQuality:          strconv.Itoa(cfg.Quality),
	}
}

// IsDerivedMetadata reports whether meta carries the worker's processed-by tag.
func IsDerivedMetadata(meta map[string]string) bool {
	value, ok := lookup(meta, MetaProcessedBy)
	return ok && value == ProcessedByTag
}

// lookup is case-insensitive: S3 lowercases user metadata names and the
// minio client canonicalizes them as HTTP headers.
func lookup(meta map[string]string, key string) (string, bool) {
	if value, ok := meta[key]; ok {
		return value, true
	}
	for k, value := range meta {
		if strings.EqualFold(k, key) {
			return value, true
		}
	}
	return "", false
}

// headerSafe percent-encodes values that cannot travel in an HTTP header.
func headerSafe(value string) string {
	for i := 0; i < len(value); i++ {
		if value[i] < 0x20 || value[i] > 0x7e {
			return url.PathEscape(value)
		}
	}
	return value
}
