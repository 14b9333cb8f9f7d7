package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"

	"thumbnailer/internal/config"
	"thumbnailer/internal/media/sniffer"
	"thumbnailer/internal/storage"
	"thumbnailer/internal/thumbnail"
)

const (
	CodeImageRequired   = "IMAGE_REQUIRED"
	CodeImagesRequired  = "IMAGES_REQUIRED"
	CodeTooManyImages   = "TOO_MANY_IMAGES"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeEmptyFile       = "EMPTY_FILE"
	CodeInvalidConfig   = "INVALID_CONFIG"
)

// RequestError is a client mistake; handlers answer it with 400.
type RequestError struct {
	Code    string
	Message string
	Issues  []thumbnail.Issue
	cause   error
}

func (e *RequestError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.cause
}

type FileFailure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// BatchError reports the files of a batch that could not be stored. Files
// that were stored stay stored.
type BatchError struct {
	Failures []FileFailure
	Stored   int
}

func (e *BatchError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Filename)
	}
	return fmt.Sprintf("%d of %d uploads failed: %s", len(e.Failures), len(e.Failures)+e.Stored, strings.Join(names, ", "))
}

type Store interface {
	Store(ctx context.Context, body []byte, originalFilename, contentType string, cfg *thumbnail.ResizeConfig) (storage.StoredObject, error)
}

type BatchResult struct {
	BatchID    string
	Count      int
	TotalBytes int64
	Objects    []storage.StoredObject
}

type UploadService struct {
	store   Store
	cfg     config.UploadConfig
	allowed sniffer.AllowList
	log     zerolog.Logger
}

func NewUploadService(store Store, cfg config.UploadConfig, log zerolog.Logger) *UploadService {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &UploadService{
		store:   store,
		cfg:     cfg,
		allowed: sniffer.NewAllowList(cfg.AllowedTypes),
		log:     log,
	}
}

func (s *UploadService) Limits() config.UploadConfig {
	return s.cfg
}

type image struct {
	filename    string
	contentType string
	data        []byte
}

// UploadSingle stores one image with the resize config parsed from form.
func (s *UploadService) UploadSingle(ctx context.Context, file *multipart.FileHeader, form map[string]string) (storage.StoredObject, error) {
	if file == nil {
		return storage.StoredObject{}, &RequestError{Code: CodeImageRequired, Message: "No image file provided"}
	}

	img, err := s.prepare(file)
	if err != nil {
		return storage.StoredObject{}, err
	}

	cfg, err := parseConfig(form)
	if err != nil {
		return storage.StoredObject{}, err
	}

	obj, err := s.store.Store(ctx, img.data, img.filename, img.contentType, &cfg)
	if err != nil {
		return storage.StoredObject{}, fmt.Errorf("store %s: %w", img.filename, err)
	}

	s.log.Info().
		Str("key", obj.Key).
		Int64("size", obj.SizeBytes).
		Str("config", cfg.String()).
		Msg("image uploaded")
	return obj, nil
}

// UploadBatch stores every file concurrently with one shared resize config
// and waits for all writes before returning.
func (s *UploadService) UploadBatch(ctx context.Context, files []*multipart.FileHeader, form map[string]string) (BatchResult, error) {
	if len(files) == 0 {
		return BatchResult{}, &RequestError{Code: CodeImagesRequired, Message: "No image files provided"}
	}
	if len(files) > s.cfg.MaxFiles {
		return BatchResult{}, &RequestError{Code: CodeTooManyImages, Message: fmt.Sprintf("Maximum %d images allowed", s.cfg.MaxFiles)}
	}

	images := make([]image, 0, len(files))
	for _, file := range files {
		img, err := s.prepare(file)
		if err != nil {
			return BatchResult{}, err
		}
		images = append(images, img)
	}

	cfg, err := parseConfig(form)
	if err != nil {
		return BatchResult{}, err
	}

	objects := make([]storage.StoredObject, len(images))
	errs := make([]error, len(images))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, img := range images {
		g.Go(func() error {
			objects[i], errs[i] = s.store.Store(ctx, img.data, img.filename, img.contentType, &cfg)
			return nil
		})
	}
	_ = g.Wait()

	result := BatchResult{
		BatchID: "batch-" + ksuid.New().String(),
		Count:   len(images),
	}
	var failures []FileFailure
	for i, img := range images {
		result.TotalBytes += int64(len(img.data))
		if errs[i] != nil {
			failures = append(failures, FileFailure{Filename: img.filename, Error: errs[i].Error()})
			continue
		}
		result.Objects = append(result.Objects, objects[i])
	}

	if len(failures) > 0 {
		return result, &BatchError{Failures: failures, Stored: len(result.Objects)}
	}

	s.log.Info().
		Str("batch_id", result.BatchID).
		Int("count", result.Count).
		Int64("total_bytes", result.TotalBytes).
		Str("config", cfg.String()).
		Msg("batch uploaded")
	return result, nil
}

func (s *UploadService) prepare(file *multipart.FileHeader) (image, error) {
	if file.Size > s.cfg.MaxFileSize {
		return image{}, s.tooLarge(file.Filename)
	}

	f, err := file.Open()
	if err != nil {
		return image{}, fmt.Errorf("open %s: %w", file.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxFileSize+1))
	if err != nil {
		return image{}, fmt.Errorf("read %s: %w", file.Filename, err)
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return image{}, s.tooLarge(file.Filename)
	}
	if len(data) == 0 {
		return image{}, &RequestError{Code: CodeEmptyFile, Message: fmt.Sprintf("File %s is empty", file.Filename)}
	}

	contentType, err := s.contentType(file, data)
	if err != nil {
		return image{}, err
	}

	return image{filename: file.Filename, contentType: contentType, data: data}, nil
}

// contentType checks the declared type against the allow-list and against
// the bytes themselves.
func (s *UploadService) contentType(file *multipart.FileHeader, data []byte) (string, error) {
	detected, err := s.allowed.Verify(sniffer.MimeTypeFromHeader(file.Header), data)
	if err != nil {
		return "", &RequestError{
			Code:    CodeInvalidFileType,
			Message: "Only image files are allowed (JPEG, PNG, GIF, WebP)",
			cause:   fmt.Errorf("%s: %w", file.Filename, err),
		}
	}
	return detected.MIME, nil
}

func (s *UploadService) tooLarge(filename string) error {
	return &RequestError{
		Code:    CodeFileTooLarge,
		Message: fmt.Sprintf("File %s exceeds the %d MB limit", filename, s.cfg.MaxFileSize>>20),
	}
}

func parseConfig(form map[string]string) (thumbnail.ResizeConfig, error) {
	cfg, err := thumbnail.ValidateStrings(form)
	if err != nil {
		var ve *thumbnail.ValidationError
		if errors.As(err, &ve) {
			return thumbnail.ResizeConfig{}, &RequestError{
				Code:    CodeInvalidConfig,
				Message: "Invalid thumbnail configuration",
				Issues:  ve.Issues,
				cause:   ve,
			}
		}
		return thumbnail.ResizeConfig{}, err
	}
	return cfg, nil
}
