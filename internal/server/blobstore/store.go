// Package blobstore keeps the encrypted document payloads. Keys are
// slash-separated paths such as documents/{user_id}/{random}.{ext}.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dmitrijs2005/privylock/internal/server/config"
	"github.com/google/uuid"
)

var ErrBlobNotFound = errors.New("blob not found")

// Store saves, opens and removes opaque blobs by key.
type Store interface {
	Save(ctx context.Context, key string, content []byte) error
	// Open returns the blob body; the caller closes it. Missing keys yield
	// ErrBlobNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// DocumentKey builds a fresh key for a user's upload. ext is taken
// without its leading dot and dropped when it contains a separator.
func DocumentKey(userID, ext string) string {
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	ext = strings.TrimPrefix(ext, ".")
	if ext != "" && !strings.ContainsAny(ext, `/\`) {
		name += "." + ext
	}
	return path.Join("documents", userID, name)
}

// New returns the Store selected by cfg.BlobBackend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendLocal, "":
		return NewLocalStore(cfg.BlobLocalDir)
	case config.BlobBackendS3:
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}
