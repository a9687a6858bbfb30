package data

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/database"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
)

// QuotaPO 配额数据库模型
type QuotaPO struct {
	OwnerID      string    `gorm:"size:255;primaryKey"`
	StorageUsed  int64     `gorm:"not null;default:0"`
	StorageQuota int64     `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (QuotaPO) TableName() string {
	return "owner_quotas"
}

// QuotaLedger 配额账本实现；所有变更都是单条 SQL 的原子增量
type QuotaLedger struct {
	db           *database.DB
	defaultQuota int64
}

// NewQuotaLedger 创建配额账本
func NewQuotaLedger(db *database.DB, defaultQuota int64) biz.QuotaLedger {
	return &QuotaLedger{db: db, defaultQuota: defaultQuota}
}

// Get 读取配额，不存在时以默认值创建
func (l *QuotaLedger) Get(ctx context.Context, ownerID string) (*biz.Quota, error) {
	db := l.db.GetDBFromContext(ctx)

	po := &QuotaPO{
		OwnerID:      ownerID,
		StorageQuota: l.defaultQuota,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(po).Error; err != nil {
		return nil, err
	}

	var out QuotaPO
	if err := db.Where("owner_id = ?", ownerID).First(&out).Error; err != nil {
		return nil, err
	}
	return toQuota(&out), nil
}

// Adjust 原子增减已用空间，下限为 0
func (l *QuotaLedger) Adjust(ctx context.Context, ownerID string, delta int64) error {
	now := time.Now().UTC()
	po := &QuotaPO{
		OwnerID:      ownerID,
		StorageUsed:  max(delta, 0),
		StorageQuota: l.defaultQuota,
		UpdatedAt:    now,
	}
	err := l.db.GetDBFromContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"storage_used": gorm.Expr("GREATEST(owner_quotas.storage_used + ?, 0)", delta),
				"updated_at":   now,
			}),
		}).
		Create(po).Error
	return classify(err)
}

// SetQuota 修改配额上限
func (l *QuotaLedger) SetQuota(ctx context.Context, ownerID string, quota int64) (*biz.Quota, error) {
	db := l.db.GetDBFromContext(ctx)

	po := &QuotaPO{
		OwnerID:      ownerID,
		StorageQuota: quota,
		UpdatedAt:    time.Now().UTC(),
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"storage_quota", "updated_at"}),
	}).Create(po).Error
	if err != nil {
		return nil, err
	}

	var out QuotaPO
	if err := db.Where("owner_id = ?", ownerID).First(&out).Error; err != nil {
		return nil, err
	}
	return toQuota(&out), nil
}

// lockQuotasSQL 先锁住待重算的配额行，未提交的完成/删除事务必须在其后记账
const lockQuotasSQL = `
SELECT owner_id FROM owner_quotas
WHERE (@owner = '' OR owner_id = @owner)
ORDER BY owner_id
FOR UPDATE`

// reconcileSQL 以 completed 文件大小之和重写 storage_used
const reconcileSQL = `
UPDATE owner_quotas q
SET storage_used = COALESCE((
        SELECT SUM(f.size) FROM files f
        WHERE f.owner_id = q.owner_id AND f.status = 'completed'
    ), 0),
    updated_at = NOW()
WHERE (@owner = '' OR q.owner_id = @owner)`

// Reconcile 重算 storage_used；ownerID 为空时处理所有用户。
// 加锁与重写分两条语句执行，重写语句的快照晚于所有已持锁的记账事务。
func (l *QuotaLedger) Reconcile(ctx context.Context, ownerID string) (int64, error) {
	args := map[string]interface{}{"owner": ownerID}

	var affected int64
	err := l.db.Transaction(ctx, func(ctx context.Context) error {
		db := l.db.GetDBFromContext(ctx)

		var locked []string
		if err := db.Raw(lockQuotasSQL, args).Scan(&locked).Error; err != nil {
			return err
		}

		res := db.Exec(reconcileSQL, args)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, classify(err)
	}
	return affected, nil
}

func toQuota(po *QuotaPO) *biz.Quota {
	return &biz.Quota{
		OwnerID:      po.OwnerID,
		StorageUsed:  po.StorageUsed,
		StorageQuota: po.StorageQuota,
		UpdatedAt:    po.UpdatedAt,
	}
}
