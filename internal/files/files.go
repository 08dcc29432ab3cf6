// Package files stores user uploads on local disk or in Google Cloud Storage
// and returns a URL the completion provider can fetch.
package files

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/soyeahso/paxxium/internal/config"
	"github.com/soyeahso/paxxium/internal/logging"
)

// Store saves an object and returns its public URL.
type Store interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// ObjectName builds the per-user upload name users/<uid>/uploads/<uuid>-<file>.
func ObjectName(userID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	return fmt.Sprintf("users/%s/uploads/%s-%s", userID, uuid.New().String(), base)
}

// New builds the configured backend. uploadsDir is used by the local backend
// when storage.dir is unset.
func New(ctx context.Context, cfg config.StorageConfig, uploadsDir string, log *logging.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		dir := cfg.Dir
		if dir == "" {
			dir = uploadsDir
		}
		return NewLocalStore(dir, cfg.PublicURL, log), nil
	case "gcs":
		return NewGCSStore(ctx, cfg.Bucket, cfg.CredentialsFile, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
