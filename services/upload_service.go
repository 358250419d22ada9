package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"roadside-monitor/be/models"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// AllowedImageTypes is the allow-list for standalone uploads.
var AllowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

const sniffLen = 3072

var errPayloadTooLarge = errors.New("payload exceeds upload limit")

// capReader fails once more than max bytes have been read. max <= 0 disables it.
type capReader struct {
	r    io.Reader
	left int64
	max  int64
}

func newCapReader(r io.Reader, max int64) io.Reader {
	if max <= 0 {
		return r
	}
	return &capReader{r: r, left: max, max: max}
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.left < 0 {
		return 0, errPayloadTooLarge
	}
	if int64(len(p)) > c.left+1 {
		p = p[:c.left+1]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	if c.left < 0 {
		return n, errPayloadTooLarge
	}
	return n, err
}

// StoredUpload describes a file accepted by the standalone upload endpoint.
type StoredUpload struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
}

type UploadService struct {
	blobs   BlobStore
	logger  *zap.Logger
	options UploadOptions
}

func NewUploadService(blobs BlobStore, logger *zap.Logger, options UploadOptions) *UploadService {
	return &UploadService{blobs: blobs, logger: logger, options: options}
}

// StoreImage accepts a JPEG, PNG, GIF or WebP image no larger than the
// configured cap. The type is sniffed from the content, not taken from the
// client.
func (s *UploadService) StoreImage(ctx context.Context, fileName string, size int64, r io.Reader) (*StoredUpload, error) {
	if r == nil {
		return nil, models.NewValidationError("No file uploaded")
	}
	if s.options.MaxBytes > 0 && size > s.options.MaxBytes {
		return nil, models.NewPayloadTooLargeError("File too large (max %d bytes)", s.options.MaxBytes)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, models.NewStorageError("Failed to read upload", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, models.NewValidationError("Uploaded file is empty")
	}

	mt := mimetype.Detect(head)
	contentType := ""
	for _, allowed := range AllowedImageTypes {
		if mt.Is(allowed) {
			contentType = allowed
			break
		}
	}
	if contentType == "" {
		return nil, models.NewUnsupportedMediaError("Only JPEG, PNG, GIF and WebP images are supported (got %s)", mt.String())
	}

	body := newCapReader(io.MultiReader(bytes.NewReader(head), r), s.options.MaxBytes)
	ref, written, err := s.blobs.Save(ctx, fileName, body)
	if err != nil {
		if errors.Is(err, errPayloadTooLarge) {
			return nil, models.NewPayloadTooLargeError("File too large (max %d bytes)", s.options.MaxBytes)
		}
		return nil, models.NewStorageError("Failed to store upload", err)
	}

	s.logger.Info("Upload stored",
		zap.String("ref", ref),
		zap.String("type", contentType),
		zap.Int64("size", written))

	return &StoredUpload{
		URL:      ImageURL(s.options.URLPrefix, ref),
		FileName: ref,
		Size:     written,
		Type:     contentType,
	}, nil
}

// Open returns the stored bytes for ref together with a content type derived
// from its extension.
func (s *UploadService) Open(ctx context.Context, ref string) (io.ReadCloser, int64, string, error) {
	rc, size, err := s.blobs.Open(ctx, ref)
	if err != nil {
		switch {
		case errors.Is(err, ErrBlobNotFound):
			return nil, 0, "", models.NewNotFoundError("File not found")
		case errors.Is(err, ErrInvalidBlobRef):
			return nil, 0, "", models.NewValidationError("Invalid file path")
		default:
			return nil, 0, "", models.NewStorageError("Failed to read file", err)
		}
	}
	return rc, size, ContentTypeForName(ref), nil
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".pdf":  "application/pdf",
	".mp4":  "video/mp4",
	".mp3":  "audio/mpeg",
	".txt":  "text/plain",
	".json": "application/json",
	".xml":  "application/xml",
}

func ContentTypeForName(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}
