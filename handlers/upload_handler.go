package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"roadside-monitor/be/models"
	"roadside-monitor/be/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipartOverhead is allowed on top of the file cap for boundaries and
// the text fields.
const multipartOverhead = 1 << 20

type UploadHandler struct {
	devices  *services.DeviceService
	uploads  *services.UploadService
	maxBytes int64
	logger   *zap.Logger
}

func NewUploadHandler(devices *services.DeviceService, uploads *services.UploadService, maxBytes int64, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{devices: devices, uploads: uploads, maxBytes: maxBytes, logger: logger}
}

// UploadDeviceImage handles multipart uploads from a roadside camera:
// file (required), title, content and licensePlate.
func (h *UploadHandler) UploadDeviceImage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	header, ok := h.formFile(c)
	if !ok {
		return
	}
	file, err := header.Open()
	if err != nil {
		respondError(c, h.logger, models.NewStorageError("Failed to read upload", err))
		return
	}
	defer file.Close()

	image, err := h.devices.RecordImage(c.Request.Context(), id, services.ImageUpload{
		FileName:     header.Filename,
		Size:         header.Size,
		Reader:       file,
		Title:        formValue(c, "title"),
		Content:      formValue(c, "content"),
		LicensePlate: formValue(c, "licensePlate"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"filename": path.Base(image.URL),
		"image":    image,
	})
}

// Upload stores a standalone image and returns its public URL.
func (h *UploadHandler) Upload(c *gin.Context) {
	header, ok := h.formFile(c)
	if !ok {
		return
	}
	file, err := header.Open()
	if err != nil {
		respondError(c, h.logger, models.NewStorageError("Failed to read upload", err))
		return
	}
	defer file.Close()

	stored, err := h.uploads.StoreImage(c.Request.Context(), header.Filename, header.Size, file)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stored)
}

// Serve streams a stored file with a long-lived cache header.
func (h *UploadHandler) Serve(c *gin.Context) {
	ref := strings.TrimPrefix(c.Param("path"), "/")
	if ref == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File path is required", "code": models.ErrorKindValidation})
		return
	}

	rc, size, contentType, err := h.uploads.Open(c.Request.Context(), ref)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Header("Content-Length", strconv.FormatInt(size, 10))
	c.Header("Content-Type", contentType)
	// Device uploads are untrusted: no sniffing, no scripts, and markup
	// types are downloaded instead of rendered.
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Content-Security-Policy", "default-src 'none'; img-src 'self'; style-src 'unsafe-inline'; sandbox")
	if isActiveContent(contentType) {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(ref)))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.Warn("Failed to stream file", zap.String("ref", ref), zap.Error(err))
	}
}

func (h *UploadHandler) formFile(c *gin.Context) (*multipart.FileHeader, bool) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondError(c, h.logger, models.NewPayloadTooLargeError("File too large (max %d bytes)", h.maxBytes))
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			respondError(c, h.logger, models.NewValidationError("No file uploaded"))
		default:
			respondError(c, h.logger, models.NewValidationError("Invalid multipart form: %v", err))
		}
		return nil, false
	}
	return header, true
}

func isActiveContent(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch mediaType {
	case "image/svg+xml", "text/html", "application/xhtml+xml", "text/xml", "application/xml":
		return true
	}
	return false
}

func formValue(c *gin.Context, name string) *string {
	v, ok := c.GetPostForm(name)
	if !ok {
		return nil
	}
	return &v
}
