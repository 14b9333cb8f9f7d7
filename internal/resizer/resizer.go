// Package resizer scales images to fit a bounding box and re-encodes them.
package resizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"thumbnailer/internal/media/sniffer"
	"thumbnailer/internal/thumbnail"
)

// DefaultMaxPixels bounds the decoded canvas at roughly 200 MB of NRGBA.
const DefaultMaxPixels = 50_000_000

var (
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrImageTooLarge     = errors.New("image dimensions exceed the pixel limit")
)

type Result struct {
	Body   []byte
	Width  int
	Height int
	Format thumbnail.Format
}

type Option func(*Resizer)

// WithMaxPixels caps width*height of accepted sources. Non-positive values
// keep the default.
func WithMaxPixels(n int64) Option {
	return func(r *Resizer) {
		if n > 0 {
			r.maxPixels = n
		}
	}
}

type Resizer struct {
	filter    imaging.ResampleFilter
	maxPixels int64
}

func New(opts ...Option) *Resizer {
	r := &Resizer{filter: imaging.Lanczos, maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resize fits src inside cfg.Width x cfg.Height keeping the aspect ratio and
// never enlarging, then encodes it as cfg.Format at cfg.Quality. The source
// header is checked against the pixel limit before anything is decoded, and
// ctx is checked between decode, fit and encode.
func (r *Resizer) Resize(ctx context.Context, src []byte, cfg thumbnail.ResizeConfig) (Result, error) {
	if !cfg.Format.Supported() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, cfg.Format)
	}
	if len(src) == 0 {
		return Result{}, errors.New("decode image: empty input")
	}

	isWebP := false
	if detected, err := sniffer.DetectHead(src); err == nil {
		isWebP = detected.Type == sniffer.TypeWEBP
	}

	if err := r.checkDimensions(src, isWebP); err != nil {
		return Result{}, err
	}

	img, err := decode(src, isWebP)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("after decode: %w", err)
	}

	fitted := imaging.Fit(img, cfg.Width, cfg.Height, r.filter)
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("after fit: %w", err)
	}

	return encode(fitted, cfg)
}

func (r *Resizer) checkDimensions(src []byte, isWebP bool) error {
	var (
		conf image.Config
		err  error
	)
	if isWebP {
		conf, err = webp.DecodeConfig(bytes.NewReader(src))
	} else {
		conf, _, err = image.DecodeConfig(bytes.NewReader(src))
	}
	if err != nil {
		return fmt.Errorf("read image header: %w", err)
	}
	if pixels := int64(conf.Width) * int64(conf.Height); pixels > r.maxPixels {
		return fmt.Errorf("%w: %dx%d is over %d pixels", ErrImageTooLarge, conf.Width, conf.Height, r.maxPixels)
	}
	return nil
}

func decode(src []byte, isWebP bool) (image.Image, error) {
	if isWebP {
		img, err := webp.Decode(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("decode webp: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func encode(img image.Image, cfg thumbnail.ResizeConfig) (Result, error) {
	var buf bytes.Buffer
	var err error
	switch cfg.Format {
	case thumbnail.FormatJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(cfg.Quality))
	case thumbnail.FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(pngCompression(cfg.Quality)))
	case thumbnail.FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(cfg.Quality)})
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, cfg.Format)
	}
	if err != nil {
		return Result{}, fmt.Errorf("encode %s: %w", cfg.Format, err)
	}

	bounds := img.Bounds()
	return Result{
		Body:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: cfg.Format,
	}, nil
}

// pngCompression maps quality onto zlib effort: lower quality asks for
// harder compression, PNG being lossless either way.
func pngCompression(quality int) png.CompressionLevel {
	level := (100 - quality) / 10
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
