package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"thumbnailer/internal/thumbnail"
)

type thumbnailDefaults struct {
	DefaultWidth     int                               `json:"defaultWidth"`
	DefaultHeight    int                               `json:"defaultHeight"`
	DefaultQuality   int                               `json:"defaultQuality"`
	DefaultFormat    thumbnail.Format                  `json:"defaultFormat"`
	SupportedFormats []thumbnail.Format                `json:"supportedFormats"`
	Presets          map[string]thumbnail.ResizeConfig `json:"presets"`
}

type statusResponse struct {
	Status          string            `json:"status"`
	Service         string            `json:"service"`
	Timestamp       string            `json:"timestamp"`
	MaxFileSize     string            `json:"maxFileSize"`
	MaxFiles        int               `json:"maxFiles"`
	AllowedTypes    []string          `json:"allowedTypes"`
	ThumbnailConfig thumbnailDefaults `json:"thumbnailConfig"`
	Endpoints       map[string]string `json:"endpoints"`
}

func (h HandlerSet) Status(c *gin.Context) {
	limits := h.uploads.Limits()
	defaults := thumbnail.Default()

	c.JSON(http.StatusOK, statusResponse{
		Status:       "ok",
		Service:      "thumbnail-upload-service",
		Timestamp:    h.timestamp(),
		MaxFileSize:  fmt.Sprintf("%dMB", limits.MaxFileSize>>20),
		MaxFiles:     limits.MaxFiles,
		AllowedTypes: limits.AllowedTypes,
		ThumbnailConfig: thumbnailDefaults{
			DefaultWidth:     defaults.Width,
			DefaultHeight:    defaults.Height,
			DefaultQuality:   defaults.Quality,
			DefaultFormat:    defaults.Format,
			SupportedFormats: thumbnail.SupportedFormats,
			Presets:          thumbnail.Presets(),
		},
		Endpoints: map[string]string{
			"single":   "POST /api/upload/single (with optional preset, width, height, quality, format in body)",
			"multiple": fmt.Sprintf("POST /api/upload/multiple (max %d images, with optional shared preset or thumbnail config)", limits.MaxFiles),
			"status":   "GET /api/upload/status",
		},
	})
}
