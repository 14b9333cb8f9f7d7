package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"thumbnailer/internal/config"
	"thumbnailer/internal/service"
)

type HandlerSet struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	uploads *service.UploadService
	now     func() time.Time
}

func NewHandlerSet(log zerolog.Logger, uploads *service.UploadService, cfg *config.AppConfig) HandlerSet {
	return HandlerSet{
		log:     log,
		cfg:     cfg,
		uploads: uploads,
		now:     time.Now,
	}
}

func (h HandlerSet) Register(router *gin.Engine) {
	router.GET("/health", h.Health)

	upload := router.Group("/api/upload")
	upload.POST("/single", h.UploadSingle)
	upload.POST("/multiple", h.UploadMultiple)
	upload.GET("/status", h.Status)

	router.NoRoute(NotFound)
}

func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   "Not Found",
		"message": "Route not found",
	})
}

func (h HandlerSet) timestamp() string {
	return h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
