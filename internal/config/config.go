package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"thumbnailer/internal/media/sniffer"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type StorageConfig struct {
	Endpoint      string
	PublicBaseURL string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	Region        string
	EnsureBucket  bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
}

type UploadConfig struct {
	MaxFileSize    int64
	MaxFiles       int
	AllowedTypes   []string
	MaxConcurrency int
}

// Notification sources the worker binary can consume.
const (
	SourceWebhook = "webhook"
	SourceListen  = "listen"
	SourceStream  = "stream"
)

type WorkerConfig struct {
	Source          string
	Concurrency     int
	RecordTimeout   time.Duration
	ClaimInterval   time.Duration
	StatsSchedule   string
	MaxSourceBytes  int64
	MaxSourcePixels int64
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	Version          string
	HTTP             HTTPConfig
	Storage          StorageConfig
	Redis            RedisConfig
	Upload           UploadConfig
	Worker           WorkerConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

var ErrMissingBucket = errors.New("storage bucket name is required")

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("thumbnailer")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("THUMBNAILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports settings without which no binary can run.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		return ErrMissingBucket
	}
	if c.Upload.MaxFiles <= 0 {
		return fmt.Errorf("upload.maxfiles must be positive, got %d", c.Upload.MaxFiles)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	return nil
}

// ValidateWorker checks the settings only the worker binary depends on.
// Bucket listening is a MinIO extension that AWS S3 does not serve.
func (c *AppConfig) ValidateWorker() error {
	switch c.Worker.Source {
	case SourceWebhook, SourceStream:
	case SourceListen:
		if strings.Contains(strings.ToLower(c.Storage.Endpoint), "amazonaws.com") {
			return fmt.Errorf("worker.source %q needs a MinIO endpoint, got %s; use %q or %q", SourceListen, c.Storage.Endpoint, SourceWebhook, SourceStream)
		}
	default:
		return fmt.Errorf("unknown worker.source %q", c.Worker.Source)
	}
	if c.Worker.MaxSourceBytes < 0 || c.Worker.MaxSourcePixels < 0 {
		return errors.New("worker source limits must not be negative")
	}
	return nil
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// bindLegacyEnv keeps the variable names used by existing deployments working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"environment":       {"THUMBNAILER_ENVIRONMENT", "ENVIRONMENT"},
		"http.port":         {"THUMBNAILER_HTTP_PORT", "PORT"},
		"storage.bucket":    {"THUMBNAILER_STORAGE_BUCKET", "BUCKET_NAME"},
		"storage.region":    {"THUMBNAILER_STORAGE_REGION", "AWS_REGION"},
		"storage.accesskey": {"THUMBNAILER_STORAGE_ACCESSKEY", "AWS_ACCESS_KEY_ID"},
		"storage.secretkey": {"THUMBNAILER_STORAGE_SECRETKEY", "AWS_SECRET_ACCESS_KEY"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("version", "1.0.0")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.readtimeout", "30s")
	v.SetDefault("http.writetimeout", "60s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("storage.endpoint", "s3.amazonaws.com")
	v.SetDefault("storage.publicbaseurl", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.usessl", true)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.ensurebucket", false)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "thumbnailer:events")
	v.SetDefault("redis.group", "thumbnail-workers")
	v.SetDefault("redis.consumer", "worker-1")

	v.SetDefault("upload.maxfilesize", 10<<20)
	v.SetDefault("upload.maxfiles", 9)
	v.SetDefault("upload.allowedtypes", sniffer.UploadableMIMETypes())
	v.SetDefault("upload.maxconcurrency", 4)

	v.SetDefault("worker.source", SourceWebhook)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.recordtimeout", "30s")
	v.SetDefault("worker.claiminterval", "30s")
	v.SetDefault("worker.statsschedule", "0 * * * * *")
	v.SetDefault("worker.maxsourcebytes", 25<<20)
	v.SetDefault("worker.maxsourcepixels", 50_000_000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("allowcorsorigins", []string{})
}
