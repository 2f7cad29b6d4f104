package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSStore keeps artifacts as objects in a Cloud Storage bucket, optionally
// under a key prefix.
type GCSStore struct {
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSStore uses application default credentials.
func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("storage bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return NewGCSStoreFromBucket(client.Bucket(bucket), prefix), nil
}

// NewGCSStoreFromBucket wraps an existing bucket handle.
func NewGCSStoreFromBucket(b *storage.BucketHandle, prefix string) *GCSStore {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &GCSStore{bucket: b, prefix: prefix}
}

func (s *GCSStore) object(name string) *storage.ObjectHandle {
	return s.bucket.Object(s.prefix + name)
}

// Save writes the object only if it does not exist yet.
func (s *GCSStore) Save(ctx context.Context, name string, data []byte) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	w := s.object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/pdf"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return fmt.Errorf("artifact %s already exists", name)
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// Open streams the object.
func (s *GCSStore) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if !ValidName(name) {
		return nil, 0, ErrNotFound
	}
	r, err := s.object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("failed to get GCS object reader for %s: %w", name, err)
	}
	return r, r.Attrs.Size, nil
}
