package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/kart-io/logger"
	"google.golang.org/api/option"

	compstorage "github.com/kart-io/docqa/pkg/component/storage"
)

// GCSStore implements Store on Google Cloud Storage.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	timeout time.Duration
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore creates a GCS store. Application default credentials are used
// unless a service account file is configured.
func NewGCSStore(ctx context.Context, opts *Options) (*GCSStore, error) {
	clientOpts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	logger.Infow("GCS object store initialized", "bucket", opts.Bucket)

	return &GCSStore{client: client, bucket: opts.Bucket, timeout: opts.Timeout}, nil
}

// Name returns the backend name.
func (g *GCSStore) Name() string { return "gcs" }

// Get downloads an object.
func (g *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	rc, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gcs get %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", key, err)
	}
	return data, nil
}

// Put uploads an object.
func (g *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close writer %s: %w", key, err)
	}
	return nil
}

// Delete removes an object. A missing object is not an error.
func (g *GCSStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s: %w", key, err)
	}
	return nil
}

// PresignPut returns a V4 signed PUT URL.
func (g *GCSStore) PresignPut(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return g.sign(key, http.MethodPut, contentType, ttl)
}

// PresignGet returns a V4 signed GET URL.
func (g *GCSStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return g.sign(key, http.MethodGet, "", ttl)
}

func (g *GCSStore) sign(key, method, contentType string, ttl time.Duration) (string, error) {
	u, err := g.client.Bucket(g.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      method,
		ContentType: contentType,
		Expires:     time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("gcs sign %s %s: %w", method, key, err)
	}
	return u, nil
}

// Ping checks that the bucket is reachable.
func (g *GCSStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	return err
}

// Close closes the GCS client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

// Health returns a health check function.
func (g *GCSStore) Health() compstorage.HealthChecker {
	return func() error { return g.Ping(context.Background()) }
}
