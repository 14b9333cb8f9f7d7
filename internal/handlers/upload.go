package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"thumbnailer/internal/service"
	"thumbnailer/internal/thumbnail"
)

const (
	singleField   = "image"
	multipleField = "images"
)

var configFields = []string{thumbnail.FieldPreset, thumbnail.FieldWidth, thumbnail.FieldHeight, thumbnail.FieldQuality, thumbnail.FieldFormat}

type imageInfo struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type uploadData struct {
	OriginalImage imageInfo `json:"originalImage"`
	Count         int       `json:"count,omitempty"`
}

type uploadResponse struct {
	Success  bool                  `json:"success"`
	Message  string                `json:"message"`
	Data     *uploadData           `json:"data,omitempty"`
	Error    string                `json:"error,omitempty"`
	Code     string                `json:"code,omitempty"`
	Issues   []thumbnail.Issue     `json:"issues,omitempty"`
	Failures []service.FileFailure `json:"failures,omitempty"`
}

func (h HandlerSet) UploadSingle(c *gin.Context) {
	form, ok := h.readForm(c, service.CodeImageRequired, "No image file provided")
	if !ok {
		return
	}

	var file *multipart.FileHeader
	if files := form.File[singleField]; len(files) > 0 {
		file = files[0]
	}

	obj, err := h.uploads.UploadSingle(c.Request.Context(), file, resizeFields(form))
	if err != nil {
		h.fail(c, err, "Failed to upload image")
		return
	}

	c.JSON(http.StatusOK, uploadResponse{
		Success: true,
		Message: "Image uploaded successfully. Thumbnail will be generated shortly.",
		Data: &uploadData{
			OriginalImage: imageInfo{Key: obj.Key, URL: obj.Location, Size: obj.SizeBytes},
		},
	})
}

func (h HandlerSet) UploadMultiple(c *gin.Context) {
	form, ok := h.readForm(c, service.CodeImagesRequired, "No image files provided")
	if !ok {
		return
	}

	result, err := h.uploads.UploadBatch(c.Request.Context(), form.File[multipleField], resizeFields(form))
	if err != nil {
		h.fail(c, err, "Failed to upload images")
		return
	}

	c.JSON(http.StatusOK, uploadResponse{
		Success: true,
		Message: fmt.Sprintf("%d images uploaded successfully. Thumbnails will be generated shortly.", result.Count),
		Data: &uploadData{
			OriginalImage: imageInfo{Key: result.BatchID, URL: "Multiple images uploaded", Size: result.TotalBytes},
			Count:         result.Count,
		},
	})
}

// readForm parses the multipart body. A body that is not multipart carries
// no file, so it is answered like a request without one.
func (h HandlerSet) readForm(c *gin.Context, missingCode, missingMessage string) (*multipart.Form, bool) {
	limits := h.uploads.Limits()
	maxBody := limits.MaxFileSize*int64(limits.MaxFiles) + 1<<20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)

	form, err := c.MultipartForm()
	if err == nil {
		return form, true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusBadRequest, uploadResponse{
			Message: "Request body exceeds the upload limit",
			Error:   service.CodeFileTooLarge,
			Code:    service.CodeFileTooLarge,
		})
		return nil, false
	}

	h.log.Debug().Err(err).Msg("multipart form unavailable")
	c.JSON(http.StatusBadRequest, uploadResponse{
		Message: missingMessage,
		Error:   missingCode,
		Code:    missingCode,
	})
	return nil, false
}

func resizeFields(form *multipart.Form) map[string]string {
	fields := make(map[string]string, len(configFields))
	for _, name := range configFields {
		if values := form.Value[name]; len(values) > 0 {
			fields[name] = values[0]
		}
	}
	return fields
}

func (h HandlerSet) fail(c *gin.Context, err error, message string) {
	var reqErr *service.RequestError
	if errors.As(err, &reqErr) {
		resp := uploadResponse{
			Message: reqErr.Message,
			Error:   reqErr.Code,
			Code:    reqErr.Code,
			Issues:  reqErr.Issues,
		}
		var ve *thumbnail.ValidationError
		if errors.As(err, &ve) {
			resp.Error = ve.Error()
		}
		h.log.Warn().Err(err).Str("code", reqErr.Code).Msg("upload rejected")
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	h.log.Error().Err(err).Msg("upload failed")

	resp := uploadResponse{Message: message, Error: h.detail(err)}
	var batchErr *service.BatchError
	if errors.As(err, &batchErr) {
		for _, f := range batchErr.Failures {
			if h.cfg.IsProduction() {
				f.Error = "upload failed"
			}
			resp.Failures = append(resp.Failures, f)
		}
	}
	c.JSON(http.StatusInternalServerError, resp)
}

func (h HandlerSet) detail(err error) string {
	if h.cfg.IsProduction() {
		return "Something went wrong"
	}
	return err.Error()
}
