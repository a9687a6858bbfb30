package minio

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// PresignedGetObject generates a presigned URL for HTTP GET operations.
// reqParams may carry versionId and response-* overrides.
func (c *Client) PresignedGetObject(ctx context.Context, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error) {
	if err := c.checkPresign("PresignedGetObject", objectName, expiry); err != nil {
		return nil, err
	}

	presignedURL, err := c.client.PresignedGetObject(ctx, c.config.Bucket, objectName, expiry, reqParams)
	if err != nil {
		return nil, WrapError("PresignedGetObject", err, c.config.Bucket, objectName)
	}

	c.logger.Debug("presigned GET URL generated",
		zap.String("object", objectName),
		zap.Duration("expiry", expiry),
	)

	return presignedURL, nil
}

// PresignedPutObject generates a presigned URL for HTTP PUT operations.
// A non-empty contentType and a positive contentLength are signed, so the
// uploader must send the same Content-Type and Content-Length headers.
func (c *Client) PresignedPutObject(ctx context.Context, objectName string, expiry time.Duration, contentType string, contentLength int64) (*url.URL, error) {
	if err := c.checkPresign("PresignedPutObject", objectName, expiry); err != nil {
		return nil, err
	}

	headers := make(http.Header)
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}
	if contentLength > 0 {
		headers.Set("Content-Length", strconv.FormatInt(contentLength, 10))
	}

	presignedURL, err := c.client.PresignHeader(ctx, http.MethodPut, c.config.Bucket, objectName, expiry, nil, headers)
	if err != nil {
		return nil, WrapError("PresignedPutObject", err, c.config.Bucket, objectName)
	}

	c.logger.Debug("presigned PUT URL generated",
		zap.String("object", objectName),
		zap.Int64("content_length", contentLength),
		zap.Duration("expiry", expiry),
	)

	return presignedURL, nil
}

func (c *Client) checkPresign(op, objectName string, expiry time.Duration) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	if err := ValidateObjectName(objectName); err != nil {
		return WrapErrorWithMessage(op, ErrInvalidObjectName, err.Error())
	}

	// S3 签名最长有效期为 7 天
	if expiry <= 0 || expiry > 7*24*time.Hour {
		return WrapErrorWithMessage(op, ErrInvalidArgument, "expiry must be between 1s and 7 days")
	}

	return nil
}
