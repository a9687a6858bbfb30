package biz

import (
	"context"
	"net/url"
	"time"
)

// FileStatus 文件状态
type FileStatus string

const (
	FileStatusUploading FileStatus = "uploading" // 已签发上传凭证，尚未确认
	FileStatusCompleted FileStatus = "completed" // 已确认，计入配额
	FileStatusDeleted   FileStatus = "deleted"   // 逻辑删除，元数据保留用于审计
	FileStatusAbandoned FileStatus = "abandoned" // 上传被取消或超时回收，从未计入配额
)

// Valid 是否为合法状态
func (s FileStatus) Valid() bool {
	switch s {
	case FileStatusUploading, FileStatusCompleted, FileStatusDeleted, FileStatusAbandoned:
		return true
	}
	return false
}

// NullVersion 对象存储未返回版本号时记录的版本（S3 约定）
const NullVersion = "null"

// File 文件元数据
type File struct {
	ID           string
	OwnerID      string
	Name         string
	DeclaredSize int64
	Size         int64 // 完成时探测到的实际大小，上传中为 0
	ContentType  string
	Tags         []string
	StorageKey   string
	Status       FileStatus

	// 仅在 completed / deleted 状态下非空
	StorageVersion *string
	Checksum       *string

	CreatedAt  time.Time
	ModifiedAt time.Time
	DeletedAt  *time.Time
}

// Version 返回存储版本，未绑定时为空串
func (f *File) Version() string {
	if f.StorageVersion == nil {
		return ""
	}
	return *f.StorageVersion
}

// StorageKey derives the object key for a file. Owner ids are path-escaped
// so that no owner can address another owner's prefix.
func StorageKey(ownerID, fileID string) string {
	return "users/" + url.PathEscape(ownerID) + "/files/" + fileID
}

// Completion 完成上传时绑定的对象信息
type Completion struct {
	Size     int64
	Version  string
	Checksum string
}

// ListFilesQuery 文件列表查询
type ListFilesQuery struct {
	OwnerID  string
	Statuses []FileStatus
	Limit    int
	Cursor   string // 上一页返回的 NextCursor
}

// FilePage 文件列表分页结果
type FilePage struct {
	Files      []*File
	NextCursor string // 为空表示没有更多数据
}

// FileRepo 文件元数据仓储；所有读写均以 (fileID, ownerID) 复合键定位
type FileRepo interface {
	Create(ctx context.Context, f *File) error
	Get(ctx context.Context, fileID, ownerID string) (*File, error)
	List(ctx context.Context, q *ListFilesQuery) (*FilePage, error)

	// 以下状态迁移均为条件更新，返回是否实际发生了迁移
	MarkCompleted(ctx context.Context, fileID, ownerID string, c Completion, now time.Time) (bool, error)
	MarkDeleted(ctx context.Context, fileID, ownerID string, now time.Time) (bool, error)
	MarkAbandoned(ctx context.Context, fileID, ownerID string, now time.Time) (bool, error)

	// ListStaleUploads 返回创建时间早于 before 的 uploading 文件
	ListStaleUploads(ctx context.Context, before time.Time, limit int) ([]*File, error)
}

// ObjectInfo 对象存储探测结果
type ObjectInfo struct {
	Exists   bool
	Version  string
	Checksum string
	Size     int64
}

// ObjectStore 对象存储适配器
type ObjectStore interface {
	IssueWriteCapability(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (string, error)
	IssueReadCapability(ctx context.Context, key, version string, ttl time.Duration, filename string) (string, error)
	Probe(ctx context.Context, key string) (*ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// Transactor 在同一元数据事务中执行 fn
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
