package minio

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// ObjectInfo represents object metadata returned by StatObject
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	VersionID    string
	ContentType  string
	LastModified time.Time
}

// StatObjectOptions represents options for getting object metadata
type StatObjectOptions struct {
	// VersionID specifies the version of the object
	VersionID string
}

// RemoveObjectOptions represents options for removing an object
type RemoveObjectOptions struct {
	// VersionID specifies the version of the object to remove
	VersionID string
}

// StatObject gets object metadata
func (c *Client) StatObject(ctx context.Context, objectName string, opts StatObjectOptions) (ObjectInfo, error) {
	if err := c.checkClosed(); err != nil {
		return ObjectInfo{}, err
	}

	if objectName == "" {
		return ObjectInfo{}, WrapError("StatObject", ErrInvalidObjectName, c.config.Bucket, objectName)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	info, err := c.client.StatObject(ctx, c.config.Bucket, objectName, minio.StatObjectOptions{VersionID: opts.VersionID})
	if err != nil {
		return ObjectInfo{}, WrapError("StatObject", err, c.config.Bucket, objectName)
	}

	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		VersionID:    info.VersionID,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

// RemoveObject removes an object from the bucket.
// Without a VersionID a versioned bucket records a delete marker.
func (c *Client) RemoveObject(ctx context.Context, objectName string, opts RemoveObjectOptions) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	if objectName == "" {
		return WrapError("RemoveObject", ErrInvalidObjectName, c.config.Bucket, objectName)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := c.client.RemoveObject(ctx, c.config.Bucket, objectName, minio.RemoveObjectOptions{VersionID: opts.VersionID})
	if err != nil {
		return WrapError("RemoveObject", err, c.config.Bucket, objectName)
	}

	c.logger.Debug("object removed",
		zap.String("object", objectName),
		zap.String("version_id", opts.VersionID),
	)

	return nil
}
