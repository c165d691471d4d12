package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores artifacts in a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS connects to bucket. An empty credentialsFile uses application
// default credentials.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs artifact store: bucket is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// Fetch reads the object at key. A missing object is ErrNotFound.
func (g *GCS) Fetch(ctx context.Context, key string) ([]byte, error) {
	slog.Debug("fetching artifact", "bucket", g.bucket, "key", key)

	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", g.bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", g.bucket, key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", g.bucket, key, err)
	}
	return data, nil
}

// Put writes data to key, replacing any existing object.
func (g *GCS) Put(ctx context.Context, key string, data []byte) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/zstd"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", g.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	slog.Info("artifact uploaded", "bucket", g.bucket, "key", key, "bytes", len(data))
	return nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
