package biz

import (
	"context"
	"time"
)

// ShareLink 分享链接
type ShareLink struct {
	ID            string
	FileID        string
	CreatedBy     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	MaxDownloads  int64 // 0 表示不限次数
	DownloadCount int64
	PasswordHash  *string
	Revoked       bool
}

// HasPassword 是否需要密码
func (s *ShareLink) HasPassword() bool {
	return s.PasswordHash != nil && *s.PasswordHash != ""
}

// Check 按 撤销 → 过期 → 次数 的顺序校验可用性
func (s *ShareLink) Check(now time.Time) error {
	switch {
	case s.Revoked:
		return ErrShareRevoked
	case !now.Before(s.ExpiresAt):
		return ErrShareExpired
	case s.MaxDownloads > 0 && s.DownloadCount >= s.MaxDownloads:
		return ErrDownloadLimitReached
	}
	return nil
}

// Usable 是否可用
func (s *ShareLink) Usable(now time.Time) bool {
	return s.Check(now) == nil
}

// ShareRepo 分享链接仓储
type ShareRepo interface {
	Create(ctx context.Context, s *ShareLink) error
	Get(ctx context.Context, shareID string) (*ShareLink, error)
	ListByFile(ctx context.Context, fileID, ownerID string) ([]*ShareLink, error)
	// Consume 在分享仍可用时原子地将 downloadCount 加 1，返回是否成功
	Consume(ctx context.Context, shareID string, now time.Time) (bool, error)
	// Revoke 撤销创建者自己的分享，返回最新记录与是否发生变更
	Revoke(ctx context.Context, shareID, ownerID string) (*ShareLink, bool, error)
}
