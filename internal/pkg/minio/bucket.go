package minio

import (
	"context"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// EnsureBucket creates the configured bucket when missing and
// turns on versioning when the configuration asks for it
func (c *Client) EnsureBucket(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	bucket := c.config.Bucket

	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return WrapError("EnsureBucket", err, bucket, "")
	}

	if !exists {
		err = c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.config.Region})
		if err != nil && !IsBucketAlreadyExists(err) {
			return WrapError("EnsureBucket", err, bucket, "")
		}
		c.logger.Info("bucket created", zap.String("bucket", bucket), zap.String("region", c.config.Region))
	}

	if !c.config.Versioning {
		return nil
	}

	enabled, err := c.VersioningEnabled(ctx)
	if err != nil {
		return err
	}
	if enabled {
		return nil
	}

	if err := c.client.EnableVersioning(ctx, bucket); err != nil {
		return WrapError("EnableVersioning", err, bucket, "")
	}
	c.logger.Info("bucket versioning enabled", zap.String("bucket", bucket))

	return nil
}

// VersioningEnabled reports whether the configured bucket keeps object versions
func (c *Client) VersioningEnabled(ctx context.Context) (bool, error) {
	if err := c.checkClosed(); err != nil {
		return false, err
	}

	cfg, err := c.client.GetBucketVersioning(ctx, c.config.Bucket)
	if err != nil {
		return false, WrapError("GetBucketVersioning", err, c.config.Bucket, "")
	}

	return cfg.Enabled(), nil
}
