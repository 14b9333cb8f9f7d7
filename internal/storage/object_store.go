package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/notification"

	"thumbnailer/internal/config"
	"thumbnailer/internal/thumbnail"
)

type StoredObject struct {
	Key         string            `json:"key"`
	Bucket      string            `json:"bucket"`
	ContentType string            `json:"contentType"`
	SizeBytes   int64             `json:"size"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Location    string            `json:"url"`
	ETag        string            `json:"etag,omitempty"`
}

// ObjectStore is the S3-compatible storage client shared by the uploader and
// the worker. Every call goes to the backend; there is no caching.
type ObjectStore struct {
	client   *minio.Client
	cfg      config.StorageConfig
	now      func() time.Time
	stamps   *Clock
	newID    func() string
	maxFetch int64
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, config.ErrMissingBucket
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentialsFor(cfg),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	cfg.UseSSL = useSSL
	return &ObjectStore{
		client: client,
		cfg:    cfg,
		now:    time.Now,
		stamps: NewClock(time.Now),
		newID:  uuid.NewString,
	}, nil
}

// credentialsFor prefers static keys and otherwise falls back to the
// environment and the instance role, which is how function runtimes
// hand out credentials.
func credentialsFor(cfg config.StorageConfig) *credentials.Credentials {
	if cfg.AccessKey != "" {
		return credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.IAM{},
	})
}

// LimitFetch makes Fetch refuse objects larger than n bytes. Zero or less
// removes the limit.
func (s *ObjectStore) LimitFetch(n int64) *ObjectStore {
	s.maxFetch = n
	return s
}

func (s *ObjectStore) Bucket() string {
	return s.cfg.Bucket
}

func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
		}
	}
	return nil
}

// Store writes an original upload under uploads/ with the resize config, if
// any, embedded as metadata.
func (s *ObjectStore) Store(ctx context.Context, body []byte, originalFilename, contentType string, cfg *thumbnail.ResizeConfig) (StoredObject, error) {
	key := OriginalKey(s.newID(), originalFilename)
	meta := UploadMetadata(originalFilename, s.now(), cfg)
	return s.put(ctx, key, body, contentType, meta)
}

// StoreDerived writes a rendered thumbnail of originalKey under thumbnails/.
func (s *ObjectStore) StoreDerived(ctx context.Context, body []byte, originalKey string, cfg thumbnail.ResizeConfig) (StoredObject, error) {
	key, meta := s.derived(originalKey, cfg)
	return s.put(ctx, key, body, cfg.Format.ContentType(), meta)
}

func (s *ObjectStore) derived(originalKey string, cfg thumbnail.ResizeConfig) (string, map[string]string) {
	at := s.stamps.Next()
	return DerivedKey(originalKey, cfg.Format, at), DerivedMetadata(originalKey, at, cfg)
}

func (s *ObjectStore) put(ctx context.Context, key string, body []byte, contentType string, meta map[string]string) (StoredObject, error) {
	info, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: meta,
	})
	if err != nil {
		return StoredObject{}, classify(err, "put object", s.cfg.Bucket, key)
	}

	location := info.Location
	if location == "" {
		location = s.PublicURL(key)
	}
	return StoredObject{
		Key:         key,
		Bucket:      s.cfg.Bucket,
		ContentType: contentType,
		SizeBytes:   info.Size,
		Metadata:    meta,
		Location:    location,
		ETag:        info.ETag,
	}, nil
}

func (s *ObjectStore) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(err, "get object", bucket, key)
	}
	defer obj.Close()

	data, err := readLimited(obj, s.maxFetch)
	switch {
	case errors.Is(err, ErrObjectTooLarge):
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, key, err)
	case err != nil:
		return nil, classify(err, "read object", bucket, key)
	}
	return data, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrObjectTooLarge, limit)
	}
	return data, nil
}

func (s *ObjectStore) Head(ctx context.Context, bucket, key string) (StoredObject, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return StoredObject{}, classify(err, "stat object", bucket, key)
	}
	return StoredObject{
		Key:         key,
		Bucket:      bucket,
		ContentType: info.ContentType,
		SizeBytes:   info.Size,
		Metadata:    info.UserMetadata,
		ETag:        info.ETag,
	}, nil
}

// Listen streams bucket notifications from a MinIO server. It is not
// supported by AWS S3.
func (s *ObjectStore) Listen(ctx context.Context, prefix string, events []string) <-chan notification.Info {
	return s.client.ListenBucketNotification(ctx, s.cfg.Bucket, prefix, "", events)
}

func (s *ObjectStore) PublicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	return publicURL(s.cfg.Endpoint, s.cfg.UseSSL, s.cfg.Bucket, key)
}

func publicURL(endpoint string, useSSL bool, bucket, key string) string {
	base := strings.TrimSuffix(endpoint, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		scheme := "https://"
		if !useSSL {
			scheme = "http://"
		}
		base = scheme + base
	}
	return fmt.Sprintf("%s/%s/%s", base, bucket, key)
}
