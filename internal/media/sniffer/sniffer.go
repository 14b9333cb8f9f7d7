// Package sniffer identifies uploaded images by their leading bytes and
// decides whether an upload's declared type may be stored.
package sniffer

import (
	"bytes"
	"errors"
	"fmt"
	"net/textproto"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
)

func (t MediaType) MIME() string {
	return "image/" + string(t)
}

var (
	ErrUnknownType   = errors.New("unknown media type")
	ErrNotAllowed    = errors.New("media type not allowed")
	ErrTypeMismatch  = errors.New("content does not match declared type")
	uploadable       = []MediaType{TypeJPEG, TypePNG, TypeGIF, TypeWEBP}
	genericDeclTypes = map[string]bool{"": true, "application/octet-stream": true}
)

type Result struct {
	Type MediaType
	MIME string
}

type signature struct {
	typ   MediaType
	match func(head []byte) bool
}

var signatures = []signature{
	{TypeJPEG, func(h []byte) bool { return len(h) > 3 && h[0] == 0xff && h[1] == 0xd8 && h[2] == 0xff }},
	{TypePNG, func(h []byte) bool { return bytes.HasPrefix(h, []byte("\x89PNG\r\n\x1a\n")) }},
	{TypeGIF, func(h []byte) bool { return bytes.HasPrefix(h, []byte("GIF87a")) || bytes.HasPrefix(h, []byte("GIF89a")) }},
	{TypeWEBP, func(h []byte) bool { return len(h) >= 12 && bytes.Equal(h[:4], []byte("RIFF")) && bytes.Equal(h[8:12], []byte("WEBP")) }},
}

// DetectHead identifies an image from its first bytes.
func DetectHead(head []byte) (Result, error) {
	for _, sig := range signatures {
		if sig.match(head) {
			return Result{Type: sig.typ, MIME: sig.typ.MIME()}, nil
		}
	}
	return Result{}, ErrUnknownType
}

// UploadableMIMETypes lists every type the service can thumbnail.
func UploadableMIMETypes() []string {
	out := make([]string, len(uploadable))
	for i, t := range uploadable {
		out[i] = t.MIME()
	}
	return out
}

// AllowList is the set of MIME types accepted for upload.
type AllowList map[string]struct{}

// NewAllowList normalizes types. Types the service cannot thumbnail are
// dropped; an empty result falls back to every uploadable type.
func NewAllowList(types []string) AllowList {
	known := make(map[string]bool, len(uploadable))
	for _, t := range uploadable {
		known[t.MIME()] = true
	}

	list := AllowList{}
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if known[t] {
			list[t] = struct{}{}
		}
	}
	if len(list) == 0 {
		for mime := range known {
			list[mime] = struct{}{}
		}
	}
	return list
}

func (a AllowList) Allows(mime string) bool {
	_, ok := a[mime]
	return ok
}

// Verify checks a declared type against the list and against the bytes.
// A missing or generic declaration is replaced by the sniffed type.
func (a AllowList) Verify(declared string, data []byte) (Result, error) {
	detected, sniffErr := DetectHead(data)

	if genericDeclTypes[declared] {
		if sniffErr != nil {
			return Result{}, sniffErr
		}
		declared = detected.MIME
	}
	if !a.Allows(declared) {
		return Result{}, fmt.Errorf("%w: %s", ErrNotAllowed, declared)
	}
	if sniffErr != nil || detected.MIME != declared {
		return Result{}, fmt.Errorf("%w: %s", ErrTypeMismatch, declared)
	}
	return detected, nil
}

// MimeTypeFromHeader returns the declared media type of a multipart part,
// without parameters.
func MimeTypeFromHeader(header textproto.MIMEHeader) string {
	contentType, _, _ := strings.Cut(header.Get("Content-Type"), ";")
	return strings.ToLower(strings.TrimSpace(contentType))
}
