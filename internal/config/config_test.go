package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BUCKET_NAME", "images")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "images", cfg.Storage.Bucket)
	require.Equal(t, 3000, cfg.HTTP.Port)
	require.Equal(t, int64(10<<20), cfg.Upload.MaxFileSize)
	require.Equal(t, 9, cfg.Upload.MaxFiles)
	require.Equal(t, []string{"image/jpeg", "image/png", "image/gif", "image/webp"}, cfg.Upload.AllowedTypes)
	require.Equal(t, 30*time.Second, cfg.Worker.RecordTimeout)
	require.Equal(t, SourceWebhook, cfg.Worker.Source)
	require.Equal(t, int64(25<<20), cfg.Worker.MaxSourceBytes)
	require.Equal(t, int64(50_000_000), cfg.Worker.MaxSourcePixels)
	require.Empty(t, cfg.AllowCORSOrigins)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateWorker())
}

func TestLoadPrefixedEnvWins(t *testing.T) {
	t.Setenv("BUCKET_NAME", "legacy")
	t.Setenv("THUMBNAILER_STORAGE_BUCKET", "primary")
	t.Setenv("THUMBNAILER_WORKER_RECORDTIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "primary", cfg.Storage.Bucket)
	require.Equal(t, 5*time.Second, cfg.Worker.RecordTimeout)
}

func TestValidateRequiresBucket(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Storage.Bucket = " "
	require.True(t, errors.Is(cfg.Validate(), ErrMissingBucket))
}

func TestLoadReadsEveryLeafFromEnv(t *testing.T) {
	t.Setenv("THUMBNAILER_STORAGE_BUCKET", "images")
	t.Setenv("THUMBNAILER_REDIS_PASSWORD", "secret")
	t.Setenv("THUMBNAILER_STORAGE_PUBLICBASEURL", "https://cdn.example.com")
	t.Setenv("THUMBNAILER_ALLOWCORSORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("THUMBNAILER_WORKER_MAXSOURCEBYTES", "1048576")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "secret", cfg.Redis.Password)
	require.Equal(t, "https://cdn.example.com", cfg.Storage.PublicBaseURL)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowCORSOrigins)
	require.Equal(t, int64(1<<20), cfg.Worker.MaxSourceBytes)
}

func TestValidateWorkerSource(t *testing.T) {
	cases := []struct {
		name     string
		source   string
		endpoint string
		ok       bool
	}{
		{"webhook on aws", SourceWebhook, "s3.amazonaws.com", true},
		{"stream on aws", SourceStream, "https://s3.eu-west-1.amazonaws.com", true},
		{"listen on minio", SourceListen, "http://minio:9000", true},
		{"listen on aws", SourceListen, "s3.amazonaws.com", false},
		{"unknown", "poll", "http://minio:9000", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := AppConfig{
				Storage: StorageConfig{Endpoint: tc.endpoint},
				Worker:  WorkerConfig{Source: tc.source},
			}
			err := cfg.ValidateWorker()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
