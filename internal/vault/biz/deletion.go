package biz

import (
	"context"

	"go.uber.org/zap"
)

// DeleteResult 删除结果
type DeleteResult struct {
	FileID         string
	Status         FileStatus
	AlreadyDeleted bool
	// Cancelled 表示删除的是未完成上传，文件进入 abandoned
	Cancelled bool
}

// DeletionCoordinator 删除协调器
type DeletionCoordinator struct {
	*coordinator
}

// DeleteFile 先删对象再迁移元数据并释放配额；uploading 文件视为取消上传
func (dc *DeletionCoordinator) DeleteFile(ctx context.Context, ownerID, fileID string) (res *DeleteResult, err error) {
	defer func() { observeOp("delete_file", err) }()

	f, err := dc.getOwned(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	switch f.Status {
	case FileStatusDeleted:
		dc.log.WithContext(ctx).Debug("file already deleted", zap.String("file_id", f.ID))
		return &DeleteResult{FileID: f.ID, Status: FileStatusDeleted, AlreadyDeleted: true}, nil
	case FileStatusUploading:
		return dc.cancelUpload(ctx, f)
	}
	return dc.deleteCompleted(ctx, f)
}

func (dc *DeletionCoordinator) deleteCompleted(ctx context.Context, f *File) (*DeleteResult, error) {
	log := dc.log.WithContext(ctx).With(zap.String("file_id", f.ID))

	// 1. 删除对象；失败则不修改任何元数据
	if err := dc.stores.Objects.Delete(ctx, f.StorageKey); err != nil {
		log.Error("failed to delete object", zap.String("storage_key", f.StorageKey), zap.Error(err))
		err = storeErr("delete object", err)
		dc.audit.failure(ctx, f.ID, f.OwnerID, ActionDelete, err, "", nil)
		return nil, err
	}

	// 2. 条件迁移 completed → deleted，并在同一事务内释放配额
	var transitioned bool
	err := dc.inTx(ctx, func(ctx context.Context) error {
		ok, err := dc.stores.Files.MarkDeleted(ctx, f.ID, f.OwnerID, dc.opts.Now())
		if err != nil {
			return storeErr("mark deleted", err)
		}
		if !ok {
			return nil
		}
		transitioned = true
		return storeErr("adjust quota", dc.stores.Quotas.Adjust(ctx, f.OwnerID, -f.Size))
	})
	if err != nil {
		log.Error("failed to mark file deleted", zap.Error(err))
		dc.audit.failure(ctx, f.ID, f.OwnerID, ActionDelete, err, "", nil)
		return nil, err
	}

	if !transitioned {
		log.Debug("file deleted concurrently")
		return &DeleteResult{FileID: f.ID, Status: FileStatusDeleted, AlreadyDeleted: true}, nil
	}

	observeQuota(-f.Size)
	dc.audit.success(ctx, f, ActionDelete, "", nil)
	log.Info("file deleted", zap.Int64("released", f.Size))
	return &DeleteResult{FileID: f.ID, Status: FileStatusDeleted}, nil
}

func (dc *DeletionCoordinator) cancelUpload(ctx context.Context, f *File) (*DeleteResult, error) {
	log := dc.log.WithContext(ctx).With(zap.String("file_id", f.ID))

	ok, err := dc.stores.Files.MarkAbandoned(ctx, f.ID, f.OwnerID, dc.opts.Now())
	if err != nil {
		log.Error("failed to cancel upload", zap.Error(err))
		err = storeErr("mark abandoned", err)
		dc.audit.failure(ctx, f.ID, f.OwnerID, ActionDelete, err, DetailCancelled, nil)
		return nil, err
	}
	if !ok {
		// 并发完成时按已完成文件删除
		latest, err := dc.getOwned(ctx, f.OwnerID, f.ID)
		if err != nil {
			return nil, err
		}
		if latest.Status == FileStatusCompleted {
			return dc.deleteCompleted(ctx, latest)
		}
		if latest.Status == FileStatusDeleted {
			return &DeleteResult{FileID: f.ID, Status: FileStatusDeleted, AlreadyDeleted: true}, nil
		}
		return nil, ErrFileNotFound
	}

	// 对象清理失败不影响取消结果
	if err := dc.stores.Objects.Delete(ctx, f.StorageKey); err != nil {
		log.Warn("failed to remove partial object", zap.String("storage_key", f.StorageKey), zap.Error(err))
	}

	dc.audit.success(ctx, f, ActionDelete, DetailCancelled, nil)
	log.Info("upload cancelled")
	return &DeleteResult{FileID: f.ID, Status: FileStatusAbandoned, Cancelled: true}, nil
}
