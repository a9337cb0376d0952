// Package blob stores product images on local disk and hands out the public
// URLs they are served under.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
)

// Store saves and removes image blobs.
type Store interface {
	Put(ctx context.Context, r io.Reader) (Object, error)
	Delete(ctx context.Context, key string) error
}

// Object is a stored blob.
type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// NewKey returns a blob key of the form <unix-ms>_<9 random digits>.
func NewKey(now time.Time, r *rand.Rand) string {
	var n int
	if r == nil {
		n = rand.IntN(900000000)
	} else {
		n = r.IntN(900000000)
	}
	return fmt.Sprintf("%d_%d", now.UnixMilli(), 100000000+n)
}

// Disk keeps blobs as files in one directory. Files are written to a
// temporary name and renamed into place.
type Disk struct {
	dir     string
	baseURL string
	maxSize int64
	now     func() time.Time
	logger  *slog.Logger
}

// NewDisk creates the blob directory if needed.
func NewDisk(cfg config.BlobConfig) (*Disk, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &Disk{
		dir:     cfg.Dir,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		maxSize: cfg.MaxImageSize,
		now:     time.Now,
		logger:  slog.Default().With("component", "blob-store"),
	}, nil
}

// Put stores an image read from r. Non-image content and content larger
// than the configured limit are rejected.
func (d *Disk) Put(ctx context.Context, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	key := NewKey(d.now(), nil)
	finalPath := filepath.Join(d.dir, key)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return Object{}, fmt.Errorf("creating temp blob: %w", err)
	}
	defer os.Remove(tmpPath)

	limit := d.maxSize
	if limit <= 0 {
		limit = 5 << 20
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		f.Close()
		return Object{}, fmt.Errorf("reading image: %w", err)
	}
	head = head[:n]
	if n == 0 {
		f.Close()
		return Object{}, apperrors.Invalid("image is empty")
	}
	contentType := http.DetectContentType(head)
	if !strings.HasPrefix(contentType, "image/") {
		f.Close()
		return Object{}, apperrors.Invalid("unsupported image type %s", contentType)
	}

	written, err := io.Copy(f, io.LimitReader(io.MultiReader(bytes.NewReader(head), r), limit+1))
	if err != nil {
		f.Close()
		return Object{}, fmt.Errorf("writing blob: %w", err)
	}
	if written > limit {
		f.Close()
		return Object{}, apperrors.Invalid("image exceeds %d bytes", limit)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return Object{}, fmt.Errorf("syncing blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return Object{}, fmt.Errorf("closing blob: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Object{}, fmt.Errorf("renaming blob: %w", err)
	}

	d.logger.Debug("blob stored", "key", key, "size", written, "content_type", contentType)
	return Object{
		Key:         key,
		URL:         d.baseURL + "/" + key,
		ContentType: contentType,
		Size:        written,
	}, nil
}

// Delete removes a blob. Missing blobs are ignored.
func (d *Disk) Delete(_ context.Context, key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return apperrors.Invalid("invalid blob key %q", key)
	}
	if err := os.Remove(filepath.Join(d.dir, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing blob %s: %w", key, err)
	}
	return nil
}

// Handler serves stored blobs read-only.
func (d *Disk) Handler() http.Handler {
	return http.FileServer(http.Dir(d.dir))
}
