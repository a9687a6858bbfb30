package biz

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DownloadResult 下载凭证
type DownloadResult struct {
	FileID      string
	Name        string
	Size        int64
	ContentType string
	Version     string
	URL         string
	ExpiresAt   time.Time
}

// RetrievalCoordinator 下载与只读查询
type RetrievalCoordinator struct {
	*coordinator
}

// RequestDownload 为 completed 文件签发绑定版本的读凭证
func (rc *RetrievalCoordinator) RequestDownload(ctx context.Context, ownerID, fileID string) (res *DownloadResult, err error) {
	defer func() { observeOp("request_download", err) }()

	f, err := rc.getOwned(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if f.Status != FileStatusCompleted {
		rc.audit.failure(ctx, f.ID, ownerID, ActionDownload, ErrFileNotFound, string(f.Status), nil)
		return nil, ErrFileNotFound
	}

	res, err = rc.mint(ctx, f)
	if err != nil {
		rc.audit.failure(ctx, f.ID, ownerID, ActionDownload, err, "", nil)
		return nil, err
	}

	rc.audit.success(ctx, f, ActionDownload, "", nil)
	rc.log.WithContext(ctx).Info("download url issued",
		zap.String("file_id", f.ID),
		zap.String("version", res.Version),
	)
	return res, nil
}

// mint 签发读凭证，分享下载复用同一逻辑
func (rc *RetrievalCoordinator) mint(ctx context.Context, f *File) (*DownloadResult, error) {
	version := f.Version()
	if version == "" {
		version = NullVersion
	}

	url, err := rc.stores.Objects.IssueReadCapability(ctx, f.StorageKey, version, rc.opts.DownloadURLTTL, f.Name)
	if err == nil {
		err = checkCapability(url, f.StorageKey)
	}
	if err != nil {
		rc.log.WithContext(ctx).Error("failed to issue download url",
			zap.String("file_id", f.ID),
			zap.String("storage_key", f.StorageKey),
			zap.Error(err),
		)
		if !errors.Is(err, ErrCapabilityIssuance) {
			err = errors.Join(ErrCapabilityIssuance, err)
		}
		return nil, err
	}

	return &DownloadResult{
		FileID:      f.ID,
		Name:        f.Name,
		Size:        f.Size,
		ContentType: f.ContentType,
		Version:     version,
		URL:         url,
		ExpiresAt:   rc.opts.Now().Add(rc.opts.DownloadURLTTL),
	}, nil
}

// GetFile 读取文件元数据，abandoned 视为不存在
func (rc *RetrievalCoordinator) GetFile(ctx context.Context, ownerID, fileID string) (*File, error) {
	return rc.getOwned(ctx, ownerID, fileID)
}

// ListFiles 按创建时间倒序分页列出文件
func (rc *RetrievalCoordinator) ListFiles(ctx context.Context, q *ListFilesQuery) (*FilePage, error) {
	if q == nil || q.OwnerID == "" {
		return nil, missing("ownerId")
	}

	query := *q
	switch {
	case query.Limit <= 0:
		query.Limit = rc.opts.ListDefaultLimit
	case query.Limit > rc.opts.ListMaxLimit:
		query.Limit = rc.opts.ListMaxLimit
	}
	if len(query.Statuses) == 0 {
		query.Statuses = []FileStatus{FileStatusUploading, FileStatusCompleted}
	}
	for _, s := range query.Statuses {
		if !s.Valid() {
			return nil, invalid("unknown status %q", s)
		}
	}

	page, err := rc.stores.Files.List(ctx, &query)
	if err != nil {
		return nil, storeErr("list files", err)
	}
	return page, nil
}

// GetQuota 读取配额，不存在时惰性创建
func (rc *RetrievalCoordinator) GetQuota(ctx context.Context, ownerID string) (*Quota, error) {
	if ownerID == "" {
		return nil, missing("ownerId")
	}
	q, err := rc.stores.Quotas.Get(ctx, ownerID)
	if err != nil {
		return nil, storeErr("get quota", err)
	}
	return q, nil
}

// ListAccessLogs 列出文件未过期的审计日志，最新在前
func (rc *RetrievalCoordinator) ListAccessLogs(ctx context.Context, ownerID, fileID string, limit int) ([]*AccessLogEntry, error) {
	f, err := rc.getOwned(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = rc.opts.ListDefaultLimit
	case limit > rc.opts.ListMaxLimit:
		limit = rc.opts.ListMaxLimit
	}

	entries, err := rc.stores.AccessLogs.ListByFile(ctx, f.ID, ownerID, rc.opts.Now(), limit)
	if err != nil {
		return nil, storeErr("list access logs", err)
	}
	return entries, nil
}
