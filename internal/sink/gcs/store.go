// Package gcs provides an artifact destination backed by Google Cloud
// Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// Store implements the sink destination against a GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed destination.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Exists probes object metadata. A missing object is (false, nil); any other
// failure is transient and reported as an error.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(name).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("object attrs: %w", err)
}

// Write streams data into the object. The generation precondition makes the
// write fail rather than clobber an object created since the probe.
func (s *Store) Write(ctx context.Context, name string, data io.Reader) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("object name is required")
	}
	writer := s.client.Bucket(s.bucket).
		Object(name).
		If(storage.Conditions{DoesNotExist: true}).
		NewWriter(ctx)
	if _, err := io.Copy(writer, data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
