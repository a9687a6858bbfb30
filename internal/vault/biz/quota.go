package biz

import (
	"context"
	"time"
)

// Quota 用户存储配额
type Quota struct {
	OwnerID      string
	StorageUsed  int64
	StorageQuota int64
	UpdatedAt    time.Time
}

// Available 剩余可用字节数，超额时为 0
func (q *Quota) Available() int64 {
	if q.StorageUsed >= q.StorageQuota {
		return 0
	}
	return q.StorageQuota - q.StorageUsed
}

// UsagePercent 已用百分比
func (q *Quota) UsagePercent() float64 {
	if q.StorageQuota <= 0 {
		return 100
	}
	return float64(q.StorageUsed) * 100 / float64(q.StorageQuota)
}

// Fits 判断追加 size 字节后是否仍在配额内
func (q *Quota) Fits(size int64) bool {
	return q.StorageUsed+size <= q.StorageQuota
}

// QuotaLedger 配额账本；所有变更必须通过原子增量完成，不允许读-改-写
type QuotaLedger interface {
	// Get 读取配额，记录不存在时以默认配额惰性创建
	Get(ctx context.Context, ownerID string) (*Quota, error)
	// Adjust 原子增减 storageUsed，结果不低于 0
	Adjust(ctx context.Context, ownerID string, delta int64) error
	// SetQuota 修改配额上限
	SetQuota(ctx context.Context, ownerID string, quota int64) (*Quota, error)
	// Reconcile 以 completed 文件大小之和重算 storageUsed；ownerID 为空时重算全部用户，返回更新行数
	Reconcile(ctx context.Context, ownerID string) (int64, error)
}
