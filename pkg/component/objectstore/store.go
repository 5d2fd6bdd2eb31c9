// Package objectstore stores uploaded blobs and issues time-limited URLs for them.
//
// Three backends are provided: S3-compatible stores (AWS S3, MinIO), Google
// Cloud Storage, and an in-process memory store for development and tests.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/docqa/pkg/component/storage"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the object store contract used by docqa.
type Store interface {
	storage.Client

	// Get returns the full object body.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes an object. Clients normally upload through a presigned URL.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// PresignPut returns a URL the client can PUT the object body to.
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)

	// PresignGet returns a time-limited download URL.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// New creates the store selected by opts.Provider.
func New(ctx context.Context, opts *Options) (Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	switch opts.Provider {
	case ProviderS3:
		return NewS3Store(ctx, opts)
	case ProviderGCS:
		return NewGCSStore(ctx, opts)
	case ProviderMemory:
		return NewMemoryStore(opts.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown object store provider %q", opts.Provider)
	}
}
