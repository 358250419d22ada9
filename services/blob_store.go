package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrBlobNotFound is returned by Open for unknown references.
var ErrBlobNotFound = errors.New("blob not found")

// ErrInvalidBlobRef is returned for references that escape the store root.
var ErrInvalidBlobRef = errors.New("invalid blob reference")

// BlobStore persists uploaded bytes and hands back a reference that can be
// stored on an Image row.
type BlobStore interface {
	Save(ctx context.Context, originalName string, r io.Reader) (ref string, size int64, err error)
	Open(ctx context.Context, ref string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, ref string) error
}

type LocalBlobStore struct {
	root string
	now  func() time.Time
}

func NewLocalBlobStore(root string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalBlobStore{root: root, now: time.Now}, nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload"
	}
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	return name
}

// Save writes r to a new file and returns its reference. A failed write
// removes the partial file.
func (s *LocalBlobStore) Save(ctx context.Context, originalName string, r io.Reader) (string, int64, error) {
	ref := fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), uuid.NewString()[:8], sanitizeName(originalName))
	path := filepath.Join(s.root, ref)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create blob: %w", err)
	}

	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write blob: %w", err)
	}
	return ref, n, nil
}

func (s *LocalBlobStore) Open(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrBlobNotFound
		}
		return nil, 0, fmt.Errorf("failed to open blob: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat blob: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, ErrBlobNotFound
	}
	return f, info.Size(), nil
}

func (s *LocalBlobStore) Delete(ctx context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *LocalBlobStore) resolve(ref string) (string, error) {
	ref = strings.TrimPrefix(filepath.ToSlash(ref), "/")
	if ref == "" {
		return "", ErrInvalidBlobRef
	}
	cleaned := filepath.Clean(filepath.FromSlash(ref))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", ErrInvalidBlobRef
	}
	return filepath.Join(s.root, cleaned), nil
}

// ctxReader stops a copy once the request context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
