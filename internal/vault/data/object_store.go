package data

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/minio"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
)

// objectClient is the subset of the MinIO wrapper used by the vault
type objectClient interface {
	PresignedPutObject(ctx context.Context, objectName string, expiry time.Duration, contentType string, contentLength int64) (*url.URL, error)
	PresignedGetObject(ctx context.Context, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	StatObject(ctx context.Context, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, objectName string, opts minio.RemoveObjectOptions) error
}

// ObjectStore adapts the MinIO client to biz.ObjectStore
type ObjectStore struct {
	client objectClient
}

// NewObjectStore creates the object store adapter
func NewObjectStore(client *minio.Client) biz.ObjectStore {
	return &ObjectStore{client: client}
}

// IssueWriteCapability returns a presigned PUT whose signature covers Content-Type and Content-Length
func (s *ObjectStore) IssueWriteCapability(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, key, ttl, contentType, size)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return u.String(), nil
}

// IssueReadCapability returns a presigned GET pinned to version
func (s *ObjectStore) IssueReadCapability(ctx context.Context, key, version string, ttl time.Duration, filename string) (string, error) {
	params := url.Values{}
	if version != "" {
		params.Set("versionId", version)
	}
	if filename != "" {
		params.Set("response-content-disposition", contentDisposition(filename))
	}

	u, err := s.client.PresignedGetObject(ctx, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return u.String(), nil
}

// Probe stats the latest version of key; a missing key is not an error
func (s *ObjectStore) Probe(ctx context.Context, key string) (*biz.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.IsObjectNotFound(err) {
			return &biz.ObjectInfo{Exists: false}, nil
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &biz.ObjectInfo{
		Exists:   true,
		Version:  info.VersionID,
		Checksum: minio.TrimETag(info.ETag),
		Size:     info.Size,
	}, nil
}

// Delete removes key; on a versioned bucket this writes a delete marker
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, key, minio.RemoveObjectOptions{}); err != nil && !minio.IsObjectNotFound(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// contentDisposition builds an attachment header. Names outside printable
// ASCII get an underscore fallback plus an RFC 5987 filename* parameter.
func contentDisposition(name string) string {
	var fallback strings.Builder
	plain := true
	for _, r := range name {
		switch {
		case r == '"' || r == '\\':
			fallback.WriteByte('_')
			plain = false
		case r < 0x20 || r > 0x7e:
			fallback.WriteByte('_')
			plain = false
		default:
			fallback.WriteRune(r)
		}
	}

	v := `attachment; filename="` + fallback.String() + `"`
	if !plain {
		v += "; filename*=UTF-8''" + rfc5987Escape(name)
	}
	return v
}

func rfc5987Escape(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
