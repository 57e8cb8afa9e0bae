package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
)

const gcsPublicHost = "storage.googleapis.com"

// GCSSource reads images from Google Cloud Storage
type GCSSource struct {
	client *gcs.Client
}

// NewGCSSource creates a GCSSource using application default credentials
func NewGCSSource(ctx context.Context) (*GCSSource, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSSource{client: client}, nil
}

// NewGCSSourceWithClient wraps an existing storage client
func NewGCSSourceWithClient(client *gcs.Client) *GCSSource {
	return &GCSSource{client: client}
}

// Close releases the storage client
func (s *GCSSource) Close() error {
	return s.client.Close()
}

// Fetch implements ImageSource
func (s *GCSSource) Fetch(ctx context.Context, locator string) ([]byte, error) {
	bucket, object, err := ParseGCSLocator(locator)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ParseGCSLocator splits gs://bucket/object or
// https://storage.googleapis.com/bucket/object into bucket and object names.
func ParseGCSLocator(locator string) (bucket, object string, err error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", "", fmt.Errorf("invalid GCS locator: %w", err)
	}

	var path string
	switch {
	case u.Scheme == "gs":
		bucket = u.Host
		path = strings.TrimPrefix(u.Path, "/")
	case (u.Scheme == "https" || u.Scheme == "http") && strings.EqualFold(u.Host, gcsPublicHost):
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		bucket = parts[0]
		if len(parts) == 2 {
			path = parts[1]
		}
	default:
		return "", "", fmt.Errorf("%w: %s is not a GCS locator", ErrUnsupportedLocator, locator)
	}

	if bucket == "" || path == "" {
		return "", "", fmt.Errorf("%w: %s has no bucket or object", ErrUnsupportedLocator, locator)
	}
	return bucket, path, nil
}
