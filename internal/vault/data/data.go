package data

import (
	"fmt"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/database"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/minio"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
)

const (
	// defaultPageSize 调用方未指定条数时的默认值
	defaultPageSize = 50
	// maxPageSize 单次查询的行数上限
	maxPageSize = 1000
)

// NewStores 组装协调器所需的全部存储
func NewStores(db *database.DB, objects *minio.Client, defaultQuota int64) biz.Stores {
	return biz.Stores{
		Files:      NewFileRepo(db),
		Quotas:     NewQuotaLedger(db, defaultQuota),
		Shares:     NewShareRepo(db),
		AccessLogs: NewAccessLogRepo(db),
		Objects:    NewObjectStore(objects),
		Tx:         db,
	}
}

// classify 将唯一键冲突、序列化失败和死锁归为并发冲突，其余错误原样返回
func classify(err error) error {
	if err == nil {
		return nil
	}
	if database.IsDuplicateKeyError(err) || database.IsRetryableError(err) {
		return fmt.Errorf("%w: %w", biz.ErrConflict, err)
	}
	return err
}
