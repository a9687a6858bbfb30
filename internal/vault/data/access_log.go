package data

import (
	"context"
	"time"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/database"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
)

// AccessLogPO 审计日志数据库模型
type AccessLogPO struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	FileID    string    `gorm:"type:uuid;not null"`
	OwnerID   string    `gorm:"size:255;not null"`
	Action    string    `gorm:"size:16;not null"`
	Timestamp time.Time `gorm:"column:logged_at;not null"`
	Success   bool      `gorm:"not null"`
	Reason    string    `gorm:"size:64;not null;default:''"`
	ShareID   *string   `gorm:"type:uuid"`
	Detail    string    `gorm:"size:64;not null;default:''"`
	SourceIP  string    `gorm:"column:source_ip;size:64;not null;default:''"`
	ExpiresAt time.Time `gorm:"not null"`
}

func (AccessLogPO) TableName() string {
	return "access_logs"
}

// AccessLogRepo 审计日志仓储实现，只追加不修改
type AccessLogRepo struct {
	db *database.DB
}

// NewAccessLogRepo 创建审计日志仓储
func NewAccessLogRepo(db *database.DB) biz.AccessLogRepo {
	return &AccessLogRepo{db: db}
}

// Append 追加一条日志
func (r *AccessLogRepo) Append(ctx context.Context, e *biz.AccessLogEntry) error {
	po := &AccessLogPO{
		ID:        e.ID,
		FileID:    e.FileID,
		OwnerID:   e.OwnerID,
		Action:    string(e.Action),
		Timestamp: e.Timestamp,
		Success:   e.Success,
		Reason:    e.Reason,
		ShareID:   e.ShareID,
		Detail:    e.Detail,
		SourceIP:  e.SourceIP,
		ExpiresAt: e.ExpiresAt,
	}
	return r.db.GetDBFromContext(ctx).Create(po).Error
}

// ListByFile 列出未过期日志，最新在前
func (r *AccessLogRepo) ListByFile(ctx context.Context, fileID, ownerID string, now time.Time, limit int) ([]*biz.AccessLogEntry, error) {
	var pos []AccessLogPO
	err := r.db.GetDBFromContext(ctx).
		Where("file_id = ? AND owner_id = ? AND expires_at > ?", fileID, ownerID, now).
		Order("logged_at DESC, id DESC").
		Scopes(database.Limit(limit, defaultPageSize, maxPageSize)).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	entries := make([]*biz.AccessLogEntry, len(pos))
	for i := range pos {
		entries[i] = toAccessLog(&pos[i])
	}
	return entries, nil
}

// PurgeExpired 删除已过期日志
func (r *AccessLogRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.GetDBFromContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&AccessLogPO{})
	return res.RowsAffected, res.Error
}

func toAccessLog(po *AccessLogPO) *biz.AccessLogEntry {
	return &biz.AccessLogEntry{
		ID:        po.ID,
		FileID:    po.FileID,
		OwnerID:   po.OwnerID,
		Action:    biz.AccessAction(po.Action),
		Timestamp: po.Timestamp,
		Success:   po.Success,
		Reason:    po.Reason,
		ShareID:   po.ShareID,
		Detail:    po.Detail,
		SourceIP:  po.SourceIP,
		ExpiresAt: po.ExpiresAt,
	}
}
