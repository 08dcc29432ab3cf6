package files

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/soyeahso/paxxium/internal/logging"
)

// LocalPrefix is the URL path the gateway serves local uploads under.
const LocalPrefix = "/files/"

// LocalStore writes uploads below a directory.
type LocalStore struct {
	dir       string
	publicURL string
	log       *logging.Logger
}

// NewLocalStore creates a local store. publicURL is prepended to returned
// URLs, e.g. "https://chat.example.com"; empty yields relative URLs.
func NewLocalStore(dir, publicURL string, log *logging.Logger) *LocalStore {
	return &LocalStore{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       log.Sub("files.local"),
	}
}

// Dir returns the root directory.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	dst := filepath.Join(s.dir, clean)
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("creating upload: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("writing upload: %w", err)
	}

	s.log.Debug().Str("name", name).Str("contentType", contentType).Int64("bytes", n).Msg("stored upload")
	return s.publicURL + LocalPrefix + filepath.ToSlash(clean), nil
}
