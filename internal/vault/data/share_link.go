package data

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/database"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
)

// ShareLinkPO 分享链接数据库模型
type ShareLinkPO struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	FileID        string    `gorm:"type:uuid;not null"`
	CreatedBy     string    `gorm:"size:255;not null"`
	CreatedAt     time.Time `gorm:"not null"`
	ExpiresAt     time.Time `gorm:"not null"`
	MaxDownloads  int64     `gorm:"not null;default:0"`
	DownloadCount int64     `gorm:"not null;default:0"`
	PasswordHash  *string   `gorm:"size:255"`
	Revoked       bool      `gorm:"not null;default:false"`
}

func (ShareLinkPO) TableName() string {
	return "share_links"
}

// ShareRepo 分享仓储实现
type ShareRepo struct {
	db *database.DB
}

// NewShareRepo 创建分享仓储
func NewShareRepo(db *database.DB) biz.ShareRepo {
	return &ShareRepo{db: db}
}

// Create 创建分享
func (r *ShareRepo) Create(ctx context.Context, s *biz.ShareLink) error {
	po := &ShareLinkPO{
		ID:            s.ID,
		FileID:        s.FileID,
		CreatedBy:     s.CreatedBy,
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
		MaxDownloads:  s.MaxDownloads,
		DownloadCount: s.DownloadCount,
		PasswordHash:  s.PasswordHash,
		Revoked:       s.Revoked,
	}
	return classify(r.db.GetDBFromContext(ctx).Create(po).Error)
}

// Get 读取分享
func (r *ShareRepo) Get(ctx context.Context, shareID string) (*biz.ShareLink, error) {
	return r.first(r.db.GetDBFromContext(ctx).Where("id = ?", shareID), shareID)
}

func (r *ShareRepo) first(query *gorm.DB, shareID string) (*biz.ShareLink, error) {
	if uuid.Validate(shareID) != nil {
		return nil, biz.ErrShareNotFound
	}

	var po ShareLinkPO
	if err := query.First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrShareNotFound
		}
		return nil, err
	}
	return toShareLink(&po), nil
}

// ListByFile 列出文件的分享，最新在前
func (r *ShareRepo) ListByFile(ctx context.Context, fileID, ownerID string) ([]*biz.ShareLink, error) {
	var pos []ShareLinkPO
	err := r.db.GetDBFromContext(ctx).
		Where("file_id = ? AND created_by = ?", fileID, ownerID).
		Order("created_at DESC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	shares := make([]*biz.ShareLink, len(pos))
	for i := range pos {
		shares[i] = toShareLink(&pos[i])
	}
	return shares, nil
}

// Consume 仅在分享仍可用时递增下载次数
func (r *ShareRepo) Consume(ctx context.Context, shareID string, now time.Time) (bool, error) {
	res := r.db.GetDBFromContext(ctx).
		Model(&ShareLinkPO{}).
		Where("id = ? AND NOT revoked AND expires_at > ?", shareID, now).
		Where("(max_downloads = 0 OR download_count < max_downloads)").
		Update("download_count", gorm.Expr("download_count + 1"))
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Revoke 撤销分享，只允许创建者操作
func (r *ShareRepo) Revoke(ctx context.Context, shareID, ownerID string) (*biz.ShareLink, bool, error) {
	if uuid.Validate(shareID) != nil {
		return nil, false, biz.ErrShareNotFound
	}

	db := r.db.GetDBFromContext(ctx)
	res := db.Model(&ShareLinkPO{}).
		Where("id = ? AND created_by = ? AND NOT revoked", shareID, ownerID).
		Update("revoked", true)
	if res.Error != nil {
		return nil, false, res.Error
	}

	share, err := r.first(db.Where("id = ? AND created_by = ?", shareID, ownerID), shareID)
	if err != nil {
		return nil, false, err
	}
	return share, res.RowsAffected == 1, nil
}

func toShareLink(po *ShareLinkPO) *biz.ShareLink {
	return &biz.ShareLink{
		ID:            po.ID,
		FileID:        po.FileID,
		CreatedBy:     po.CreatedBy,
		CreatedAt:     po.CreatedAt,
		ExpiresAt:     po.ExpiresAt,
		MaxDownloads:  po.MaxDownloads,
		DownloadCount: po.DownloadCount,
		PasswordHash:  po.PasswordHash,
		Revoked:       po.Revoked,
	}
}
