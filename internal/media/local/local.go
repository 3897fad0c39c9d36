package local

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/avelichko/circlechat-server/internal/media"
)

// Uploader stores media on the local filesystem and returns URLs under a
// base path the HTTP server serves statically.
type Uploader struct {
	dir     string
	baseURL string
}

// New creates the upload directory if needed.
func New(dir, baseURL string) (*Uploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Uploader{dir: dir, baseURL: baseURL}, nil
}

// Upload writes the object under a random name with an extension derived
// from the content, not from the client-supplied filename.
func (u *Uploader) Upload(_ context.Context, _ string, data []byte) (string, error) {
	ext := mimetype.Detect(data).Extension()
	name := uuid.NewString() + ext

	if err := os.WriteFile(filepath.Join(u.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write media object: %w", err)
	}

	return path.Join(u.baseURL, name), nil
}

var _ media.Uploader = (*Uploader)(nil)
