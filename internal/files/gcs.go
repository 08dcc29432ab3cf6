package files

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"

	"github.com/soyeahso/paxxium/internal/logging"
)

// GCSStore uploads objects to a Google Cloud Storage bucket.
type GCSStore struct {
	bucket string
	svc    *storage.Service
	log    *logging.Logger
}

// NewGCSStore authenticates with a service account file when given, or with
// application default credentials otherwise.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string, log *logging.Logger) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs: bucket is required")
	}

	var client *http.Client
	if credentialsFile != "" {
		b, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("gcs: reading credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, b, storage.DevstorageReadWriteScope)
		if err != nil {
			return nil, fmt.Errorf("gcs: parsing credentials: %w", err)
		}
		client = oauth2.NewClient(ctx, creds.TokenSource)
	} else {
		var err error
		client, err = google.DefaultClient(ctx, storage.DevstorageReadWriteScope)
		if err != nil {
			return nil, fmt.Errorf("gcs: default credentials: %w", err)
		}
	}

	return newGCSStore(ctx, bucket, log, option.WithHTTPClient(client))
}

func newGCSStore(ctx context.Context, bucket string, log *logging.Logger, opts ...option.ClientOption) (*GCSStore, error) {
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: creating service: %w", err)
	}
	return &GCSStore{bucket: bucket, svc: svc, log: log.Sub("files.gcs")}, nil
}

func (s *GCSStore) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	obj, err := s.svc.Objects.Insert(s.bucket, &storage.Object{Name: name, ContentType: contentType}).
		Media(r, googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("gcs: uploading %s: %w", name, err)
	}

	s.log.Debug().Str("bucket", s.bucket).Str("name", obj.Name).Uint64("bytes", obj.Size).Msg("stored upload")
	return publicURL(s.bucket, obj.Name), nil
}

func publicURL(bucket, name string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + (&url.URL{Path: name}).EscapedPath()
}
