// Package minio provides a MinIO / S3 implementation of
// reportstore.Store for deployments where investigation artifacts feed
// downstream review tooling out of a shared bucket.
//
// Usage:
//
//	cfg := &reportstore.Config{
//		Provider:  reportstore.ProviderMinIO,
//		Endpoint:  "localhost:9000",
//		AccessKey: "minioadmin",
//		SecretKey: "minioadmin",
//		Bucket:    "chartminer-reports",
//	}
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
package minio

import (
	"bytes"
	"context"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/medharbor/chartminer/internal/errs"
	"github.com/medharbor/chartminer/internal/reportstore"
)

// Driver is a MinIO implementation of reportstore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
	bucket string
	prefix string
}

var _ reportstore.Store = (*Driver)(nil)

// New connects to MinIO using the provided Config and returns a Driver.
// It calls Ping to validate the bucket before returning.
func New(ctx context.Context, cfg *reportstore.Config) (*Driver, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "report bucket is required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	d := &Driver{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// Save uploads the encoded artifact and returns its bucket/key location.
func (d *Driver) Save(ctx context.Context, key string, v any) (string, error) {
	data, err := reportstore.Encode(v)
	if err != nil {
		return "", err
	}

	full := key
	if d.prefix != "" {
		full = d.prefix + "/" + key
	}

	_, err = d.client.PutObject(ctx, d.bucket, full,
		bytes.NewReader(data), int64(len(data)),
		miniogo.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", mapError(err, "failed to store report")
	}

	return d.bucket + "/" + full, nil
}

// Ping verifies the configured bucket exists and is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	ok, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return mapError(err, "ping failed")
	}
	if !ok {
		return errs.New(errs.ErrKindNotFound, "report bucket does not exist: "+d.bucket)
	}
	return nil
}

// Close is a no-op; the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}
