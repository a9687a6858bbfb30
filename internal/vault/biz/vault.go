package biz

import (
	"context"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
)

// Stores 协调器依赖的存储
type Stores struct {
	Files      FileRepo
	Quotas     QuotaLedger
	Shares     ShareRepo
	AccessLogs AccessLogRepo
	Objects    ObjectStore
	Tx         Transactor
}

// Vault 聚合四个协调器
type Vault struct {
	Upload    *UploadCoordinator
	Retrieval *RetrievalCoordinator
	Deletion  *DeletionCoordinator
	Share     *ShareCoordinator
}

// NewVault 创建全部协调器
func NewVault(stores Stores, opts Options, log *logger.Logger) *Vault {
	opts.setDefaults()
	if log == nil {
		log = logger.Nop()
	}

	base := &coordinator{
		stores: stores,
		opts:   opts,
		log:    log,
		audit: &auditor{
			repo:      stores.AccessLogs,
			retention: opts.AccessLogRetention,
			now:       opts.Now,
			log:       log,
		},
	}

	retrieval := &RetrievalCoordinator{coordinator: base}
	return &Vault{
		Upload:    &UploadCoordinator{coordinator: base},
		Retrieval: retrieval,
		Deletion:  &DeletionCoordinator{coordinator: base},
		Share:     newShareCoordinator(base, retrieval),
	}
}

// coordinator 协调器共享的依赖
type coordinator struct {
	stores Stores
	opts   Options
	log    *logger.Logger
	audit  *auditor
}

// getOwned 按 (fileID, ownerID) 读取文件，abandoned 视为不存在
func (c *coordinator) getOwned(ctx context.Context, ownerID, fileID string) (*File, error) {
	if ownerID == "" {
		return nil, missing("ownerId")
	}
	if fileID == "" {
		return nil, missing("fileId")
	}

	f, err := c.stores.Files.Get(ctx, fileID, ownerID)
	if err != nil {
		return nil, storeErr("get file", err)
	}
	if f.Status == FileStatusAbandoned {
		return nil, ErrFileNotFound
	}
	return f, nil
}

// inTx 在元数据事务中执行；未配置 Transactor 时直接执行
func (c *coordinator) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.stores.Tx == nil {
		return fn(ctx)
	}
	return c.stores.Tx.Transaction(ctx, fn)
}
