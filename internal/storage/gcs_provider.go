package storage

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSProvider implements Provider for Google Cloud Storage.
type GCSProvider struct {
	Client      *storage.Client
	BucketName  string
	Prefix      string
	ContentType string
}

// NewGCSProvider initializes a GCS client and verifies the bucket is reachable.
// Authentication uses Application Default Credentials unless opts say otherwise.
func NewGCSProvider(ctx context.Context, bucketName, prefix string, opts ...option.ClientOption) (*GCSProvider, error) {
	if bucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("get GCS bucket %q attributes: %w (close client: %v)", bucketName, err, closeErr)
		}
		return nil, fmt.Errorf("get GCS bucket %q attributes: %w", bucketName, err)
	}

	return &GCSProvider{
		Client:      client,
		BucketName:  bucketName,
		Prefix:      prefix,
		ContentType: "application/json; charset=utf-8",
	}, nil
}

// Save uploads data to the object under the configured prefix.
func (g *GCSProvider) Save(ctx context.Context, objectName string, data []byte) error {
	name := objectName
	if g.Prefix != "" {
		name = g.Prefix + "/" + objectName
	}
	wc := g.Client.Bucket(g.BucketName).Object(name).NewWriter(ctx)
	if g.ContentType != "" {
		wc.ContentType = g.ContentType
	}

	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			return fmt.Errorf("write GCS object %s: %w (close writer: %v)", name, err, closeErr)
		}
		return fmt.Errorf("write GCS object %s: %w", name, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close GCS writer for object %s: %w", name, err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCSProvider) Close() error {
	if g.Client == nil {
		return nil
	}
	if err := g.Client.Close(); err != nil {
		return fmt.Errorf("close GCS client: %w", err)
	}
	return nil
}
