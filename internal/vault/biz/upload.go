package biz

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxNameLength = 1024
	maxTags       = 32
	maxTagLength  = 64
)

// InitiateUploadRequest 发起上传请求
type InitiateUploadRequest struct {
	Name         string
	DeclaredSize int64
	ContentType  string
	Tags         []string
}

// InitiateUploadResult 发起上传结果
type InitiateUploadResult struct {
	FileID    string
	UploadURL string
	ExpiresAt time.Time
}

// CompleteUploadResult 确认上传结果
type CompleteUploadResult struct {
	File             *File
	AlreadyCompleted bool
}

// UploadCoordinator 两阶段上传协调器
type UploadCoordinator struct {
	*coordinator
}

// InitiateUpload 校验请求与配额，签发写凭证并创建 uploading 记录
func (uc *UploadCoordinator) InitiateUpload(ctx context.Context, ownerID string, req *InitiateUploadRequest) (res *InitiateUploadResult, err error) {
	defer func() { observeOp("initiate_upload", err) }()
	log := uc.log.WithContext(ctx)

	// 1. 参数校验，在任何存储调用之前完成
	if ownerID == "" {
		return nil, missing("ownerId")
	}
	name, contentType, tags, err := uc.validateUpload(req)
	if err != nil {
		return nil, err
	}

	// 2. 配额预检（仅建议性，不预留）
	quota, err := uc.stores.Quotas.Get(ctx, ownerID)
	if err != nil {
		return nil, storeErr("get quota", err)
	}
	if !quota.Fits(req.DeclaredSize) {
		log.Info("upload rejected by quota",
			zap.Int64("declared_size", req.DeclaredSize),
			zap.Int64("storage_used", quota.StorageUsed),
			zap.Int64("storage_quota", quota.StorageQuota),
		)
		return nil, ErrQuotaExceeded
	}

	// 3. 生成 fileID 与存储路径，签发写凭证
	fileID := uuid.NewString()
	key := StorageKey(ownerID, fileID)
	now := uc.opts.Now()

	uploadURL, err := uc.stores.Objects.IssueWriteCapability(ctx, key, contentType, req.DeclaredSize, uc.opts.UploadURLTTL)
	if err == nil {
		err = checkCapability(uploadURL, key)
	}
	if err != nil {
		log.Error("failed to issue upload url", zap.String("storage_key", key), zap.Error(err))
		if errors.Is(err, ErrCapabilityIssuance) {
			return nil, err
		}
		return nil, errors.Join(ErrCapabilityIssuance, err)
	}

	// 4. 创建 uploading 记录
	f := &File{
		ID:           fileID,
		OwnerID:      ownerID,
		Name:         name,
		DeclaredSize: req.DeclaredSize,
		ContentType:  contentType,
		Tags:         tags,
		StorageKey:   key,
		Status:       FileStatusUploading,
		CreatedAt:    now,
		ModifiedAt:   now,
	}
	if err := uc.stores.Files.Create(ctx, f); err != nil {
		log.Error("failed to create file record", zap.String("file_id", fileID), zap.Error(err))
		return nil, storeErr("create file", err)
	}

	log.Info("upload initiated",
		zap.String("file_id", fileID),
		zap.Int64("declared_size", req.DeclaredSize),
		zap.String("content_type", contentType),
	)

	return &InitiateUploadResult{
		FileID:    fileID,
		UploadURL: uploadURL,
		ExpiresAt: now.Add(uc.opts.UploadURLTTL),
	}, nil
}

func (uc *UploadCoordinator) validateUpload(req *InitiateUploadRequest) (string, string, []string, error) {
	if req == nil {
		return "", "", nil, missing("name")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", "", nil, missing("name")
	}
	if len(name) > maxNameLength || strings.ContainsAny(name, "/\x00") {
		return "", "", nil, invalid("name must be at most %d bytes without '/' or NUL", maxNameLength)
	}

	switch {
	case req.DeclaredSize == 0:
		return "", "", nil, missing("size")
	case req.DeclaredSize < 0:
		return "", "", nil, invalid("size must be positive")
	case req.DeclaredSize > uc.opts.MaxFileSize:
		return "", "", nil, ErrFileTooLarge
	}

	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		return "", "", nil, missing("contentType")
	}
	if _, _, err := mime.ParseMediaType(contentType); err != nil {
		return "", "", nil, invalid("malformed content type %q", contentType)
	}

	tags, err := normalizeTags(req.Tags)
	if err != nil {
		return "", "", nil, err
	}
	return name, contentType, tags, nil
}

// normalizeTags 去空白、去重并排序
func normalizeTags(in []string) ([]string, error) {
	tags := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if len(t) > maxTagLength {
			return nil, invalid("tag longer than %d bytes", maxTagLength)
		}
		tags = append(tags, t)
	}
	slices.Sort(tags)
	tags = slices.Compact(tags)
	if len(tags) > maxTags {
		return nil, invalid("at most %d tags", maxTags)
	}
	return tags, nil
}

// CompleteUpload 探测对象并将文件迁移到 completed，按实际大小计入配额
func (uc *UploadCoordinator) CompleteUpload(ctx context.Context, ownerID, fileID string) (res *CompleteUploadResult, err error) {
	defer func() { observeOp("complete_upload", err) }()
	log := uc.log.WithContext(ctx).With(zap.String("file_id", fileID))

	// 1. 读取文件
	f, err := uc.getOwned(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	switch f.Status {
	case FileStatusCompleted:
		log.Debug("upload already completed")
		return &CompleteUploadResult{File: f, AlreadyCompleted: true}, nil
	case FileStatusUploading:
	default:
		return nil, ErrFileNotFound
	}

	// 2. 探测对象存储
	info, err := uc.stores.Objects.Probe(ctx, f.StorageKey)
	if err != nil {
		log.Error("failed to probe object", zap.String("storage_key", f.StorageKey), zap.Error(err))
		err = storeErr("probe object", err)
		uc.audit.failure(ctx, f.ID, ownerID, ActionUpload, err, "", nil)
		return nil, err
	}
	if !info.Exists {
		log.Info("completion before object landed")
		uc.audit.failure(ctx, f.ID, ownerID, ActionUpload, ErrUploadNotFound, "", nil)
		return nil, ErrUploadNotFound
	}
	// 对象超过声明大小或单文件上限时不计费，删除对象，文件保持 uploading
	if info.Size > f.DeclaredSize || info.Size > uc.opts.MaxFileSize {
		log.Warn("object exceeds declared size",
			zap.Int64("declared_size", f.DeclaredSize),
			zap.Int64("actual_size", info.Size),
		)
		err = fmt.Errorf("%w: object is %d bytes, declared %d", ErrFileTooLarge, info.Size, f.DeclaredSize)
		if derr := uc.stores.Objects.Delete(ctx, f.StorageKey); derr != nil {
			log.Warn("failed to remove oversized object", zap.String("storage_key", f.StorageKey), zap.Error(derr))
		}
		uc.audit.failure(ctx, f.ID, ownerID, ActionUpload, err, "", nil)
		return nil, err
	}
	if info.Size != f.DeclaredSize {
		log.Info("object smaller than declared size",
			zap.Int64("declared_size", f.DeclaredSize),
			zap.Int64("actual_size", info.Size),
		)
	}

	completion := Completion{
		Size:     info.Size,
		Version:  info.Version,
		Checksum: info.Checksum,
	}
	if completion.Version == "" {
		completion.Version = NullVersion
	}

	// 3. 条件迁移 + 配额增量，同一事务内完成
	var transitioned bool
	err = uc.inTx(ctx, func(ctx context.Context) error {
		ok, err := uc.stores.Files.MarkCompleted(ctx, f.ID, ownerID, completion, uc.opts.Now())
		if err != nil {
			return storeErr("mark completed", err)
		}
		if !ok {
			return nil
		}
		transitioned = true
		return storeErr("adjust quota", uc.stores.Quotas.Adjust(ctx, ownerID, completion.Size))
	})
	if err != nil {
		log.Error("failed to complete upload", zap.Error(err))
		uc.audit.failure(ctx, f.ID, ownerID, ActionUpload, err, "", nil)
		return nil, err
	}

	// 4. 重新读取最终状态；未迁移说明并发请求已处理
	latest, err := uc.stores.Files.Get(ctx, f.ID, ownerID)
	if err != nil {
		return nil, storeErr("get file", err)
	}
	if !transitioned {
		if latest.Status == FileStatusCompleted {
			log.Debug("upload completed concurrently")
			return &CompleteUploadResult{File: latest, AlreadyCompleted: true}, nil
		}
		return nil, ErrFileNotFound
	}

	observeQuota(completion.Size)
	uc.audit.success(ctx, latest, ActionUpload, "", nil)
	log.Info("upload completed",
		zap.Int64("size", completion.Size),
		zap.String("version", completion.Version),
	)
	return &CompleteUploadResult{File: latest}, nil
}
