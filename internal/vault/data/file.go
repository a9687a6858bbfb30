package data

import (
	"context"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/database"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
)

// tagSet 以 JSONB 数组存储的标签集合
type tagSet []string

func (t tagSet) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *tagSet) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported tags type %T", src)
	}
	return json.Unmarshal(b, (*[]string)(t))
}

// FilePO 文件元数据数据库模型，主键为 (file_id, owner_id)
type FilePO struct {
	FileID         string    `gorm:"type:uuid;primaryKey"`
	OwnerID        string    `gorm:"size:255;primaryKey"`
	Name           string    `gorm:"size:1024;not null"`
	DeclaredSize   int64     `gorm:"not null"`
	Size           int64     `gorm:"not null;default:0"`
	ContentType    string    `gorm:"size:255;not null"`
	Tags           tagSet    `gorm:"type:jsonb;not null"`
	StorageKey     string    `gorm:"size:1024;not null;uniqueIndex"`
	Status         string    `gorm:"size:16;not null"`
	StorageVersion *string   `gorm:"size:255"`
	Checksum       *string   `gorm:"size:255"`
	CreatedAt      time.Time `gorm:"not null"`
	ModifiedAt     time.Time `gorm:"not null"`
	DeletedAt      *time.Time
}

func (FilePO) TableName() string {
	return "files"
}

// FileRepo 文件仓储实现
type FileRepo struct {
	db *database.DB
}

// NewFileRepo 创建文件仓储
func NewFileRepo(db *database.DB) biz.FileRepo {
	return &FileRepo{db: db}
}

// Create 创建 uploading 记录
func (r *FileRepo) Create(ctx context.Context, f *biz.File) error {
	po := &FilePO{
		FileID:       f.ID,
		OwnerID:      f.OwnerID,
		Name:         f.Name,
		DeclaredSize: f.DeclaredSize,
		ContentType:  f.ContentType,
		Tags:         tagSet(f.Tags),
		StorageKey:   f.StorageKey,
		Status:       string(f.Status),
		CreatedAt:    f.CreatedAt,
		ModifiedAt:   f.ModifiedAt,
	}
	return classify(r.db.GetDBFromContext(ctx).Create(po).Error)
}

// Get 按 (fileID, ownerID) 读取
func (r *FileRepo) Get(ctx context.Context, fileID, ownerID string) (*biz.File, error) {
	// 非法 UUID 直接视为不存在，避免数据库类型错误
	if uuid.Validate(fileID) != nil {
		return nil, biz.ErrFileNotFound
	}

	var po FilePO
	err := r.db.GetDBFromContext(ctx).
		Where("file_id = ? AND owner_id = ?", fileID, ownerID).
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrFileNotFound
		}
		return nil, err
	}
	return toFile(&po), nil
}

// fileCursor 列表分页游标
type fileCursor struct {
	CreatedAt time.Time `json:"c"`
	FileID    string    `json:"f"`
}

func encodeCursor(po *FilePO) string {
	b, _ := json.Marshal(fileCursor{CreatedAt: po.CreatedAt, FileID: po.FileID})
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (*fileCursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, biz.ErrInvalidCursor
	}
	var c fileCursor
	if err := json.Unmarshal(b, &c); err != nil || uuid.Validate(c.FileID) != nil || c.CreatedAt.IsZero() {
		return nil, biz.ErrInvalidCursor
	}
	return &c, nil
}

// List 按 (created_at, file_id) 倒序的游标分页
func (r *FileRepo) List(ctx context.Context, q *biz.ListFilesQuery) (*biz.FilePage, error) {
	statuses := make([]string, len(q.Statuses))
	for i, s := range q.Statuses {
		statuses[i] = string(s)
	}

	query := r.db.GetDBFromContext(ctx).
		Where("owner_id = ?", q.OwnerID).
		Where("status IN ?", statuses)

	if q.Cursor != "" {
		c, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		query = query.Where("(created_at, file_id) < (?, ?)", c.CreatedAt, c.FileID)
	}

	// 多取一行用于判断是否还有下一页
	limit := database.ClampLimit(q.Limit, defaultPageSize, maxPageSize)
	var pos []FilePO
	err := query.
		Order("created_at DESC, file_id DESC").
		Limit(limit + 1).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	page := &biz.FilePage{}
	if len(pos) > limit {
		pos = pos[:limit]
		page.NextCursor = encodeCursor(&pos[len(pos)-1])
	}
	page.Files = make([]*biz.File, len(pos))
	for i := range pos {
		page.Files[i] = toFile(&pos[i])
	}
	return page, nil
}

// transition 条件更新状态，返回是否命中
func (r *FileRepo) transition(ctx context.Context, fileID, ownerID string, from biz.FileStatus, updates map[string]interface{}) (bool, error) {
	res := r.db.GetDBFromContext(ctx).
		Model(&FilePO{}).
		Where("file_id = ? AND owner_id = ? AND status = ?", fileID, ownerID, string(from)).
		Updates(updates)
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkCompleted uploading → completed，绑定版本与校验和
func (r *FileRepo) MarkCompleted(ctx context.Context, fileID, ownerID string, c biz.Completion, now time.Time) (bool, error) {
	return r.transition(ctx, fileID, ownerID, biz.FileStatusUploading, map[string]interface{}{
		"status":          string(biz.FileStatusCompleted),
		"size":            c.Size,
		"storage_version": c.Version,
		"checksum":        c.Checksum,
		"modified_at":     now,
	})
}

// MarkDeleted completed → deleted
func (r *FileRepo) MarkDeleted(ctx context.Context, fileID, ownerID string, now time.Time) (bool, error) {
	return r.transition(ctx, fileID, ownerID, biz.FileStatusCompleted, map[string]interface{}{
		"status":      string(biz.FileStatusDeleted),
		"deleted_at":  now,
		"modified_at": now,
	})
}

// MarkAbandoned uploading → abandoned
func (r *FileRepo) MarkAbandoned(ctx context.Context, fileID, ownerID string, now time.Time) (bool, error) {
	return r.transition(ctx, fileID, ownerID, biz.FileStatusUploading, map[string]interface{}{
		"status":      string(biz.FileStatusAbandoned),
		"modified_at": now,
	})
}

// ListStaleUploads 最早创建的超时 uploading 文件
func (r *FileRepo) ListStaleUploads(ctx context.Context, before time.Time, limit int) ([]*biz.File, error) {
	var pos []FilePO
	err := r.db.GetDBFromContext(ctx).
		Where("status = ? AND created_at < ?", string(biz.FileStatusUploading), before).
		Order("created_at ASC").
		Scopes(database.Limit(limit, defaultPageSize, maxPageSize)).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	files := make([]*biz.File, len(pos))
	for i := range pos {
		files[i] = toFile(&pos[i])
	}
	return files, nil
}

func toFile(po *FilePO) *biz.File {
	return &biz.File{
		ID:             po.FileID,
		OwnerID:        po.OwnerID,
		Name:           po.Name,
		DeclaredSize:   po.DeclaredSize,
		Size:           po.Size,
		ContentType:    po.ContentType,
		Tags:           []string(po.Tags),
		StorageKey:     po.StorageKey,
		Status:         biz.FileStatus(po.Status),
		StorageVersion: po.StorageVersion,
		Checksum:       po.Checksum,
		CreatedAt:      po.CreatedAt,
		ModifiedAt:     po.ModifiedAt,
		DeletedAt:      po.DeletedAt,
	}
}
