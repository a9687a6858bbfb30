package service

import (
	"time"

	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
)

// File DTO

// InitiateUploadRequest 发起上传请求
type InitiateUploadRequest struct {
	Name        string   `json:"name" binding:"required"`
	Size        int64    `json:"size"`         // 声明大小（字节）
	ContentType string   `json:"content_type"` // 上传时必须携带相同的 Content-Type
	Tags        []string `json:"tags"`
}

// InitiateUploadResponse 发起上传响应
type InitiateUploadResponse struct {
	FileID    string `json:"file_id"`
	UploadURL string `json:"upload_url"`
	ExpiresAt string `json:"expires_at"`
}

// FileResponse 文件元数据响应
type FileResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	DeclaredSize int64    `json:"declared_size"`
	Size         int64    `json:"size"`
	ContentType  string   `json:"content_type"`
	Tags         []string `json:"tags"`
	Status       string   `json:"status"`
	Version      *string  `json:"version,omitempty"`
	Checksum     *string  `json:"checksum,omitempty"`
	CreatedAt    string   `json:"created_at"`
	ModifiedAt   string   `json:"modified_at"`
	DeletedAt    *string  `json:"deleted_at,omitempty"`
}

// CompleteUploadResponse 确认上传响应
type CompleteUploadResponse struct {
	File             *FileResponse `json:"file"`
	AlreadyCompleted bool          `json:"already_completed"`
}

// ListFilesRequest 文件列表请求，status 可重复或以逗号分隔
type ListFilesRequest struct {
	Limit  int      `form:"limit" binding:"omitempty,min=1"`
	Cursor string   `form:"cursor"`
	Status []string `form:"status"`
}

// ListFilesResponse 文件列表响应
type ListFilesResponse struct {
	Items      []*FileResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// DownloadResponse 下载凭证响应
type DownloadResponse struct {
	FileID      string `json:"file_id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Version     string `json:"version"`
	DownloadURL string `json:"download_url"`
	ExpiresAt   string `json:"expires_at"`
}

// DeleteFileResponse 删除响应
type DeleteFileResponse struct {
	FileID         string `json:"file_id"`
	Status         string `json:"status"`
	AlreadyDeleted bool   `json:"already_deleted"`
	Cancelled      bool   `json:"cancelled"`
}

// QuotaResponse 配额响应
type QuotaResponse struct {
	StorageUsed  int64   `json:"storage_used"`
	StorageQuota int64   `json:"storage_quota"`
	Available    int64   `json:"available"`
	UsagePercent float64 `json:"usage_percent"`
}

// ListAccessLogsRequest 审计日志列表请求
type ListAccessLogsRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// AccessLogResponse 审计日志条目
type AccessLogResponse struct {
	ID        string  `json:"id"`
	Action    string  `json:"action"`
	Timestamp string  `json:"timestamp"`
	Success   bool    `json:"success"`
	Reason    string  `json:"reason,omitempty"`
	ShareID   *string `json:"share_id,omitempty"`
	Detail    string  `json:"detail,omitempty"`
	SourceIP  string  `json:"source_ip,omitempty"`
}

// Share DTO

// CreateShareRequest 创建分享请求
type CreateShareRequest struct {
	ExpiresInSeconds int64  `json:"expires_in_seconds"` // 0 使用默认有效期，负数或超过上限返回校验错误
	MaxDownloads     int64  `json:"max_downloads"`      // 0 表示不限
	Password         string `json:"password"`
}

// ShareResponse 分享链接响应，不返回密码哈希
type ShareResponse struct {
	ShareID       string `json:"share_id"`
	FileID        string `json:"file_id"`
	ShareURL      string `json:"share_url,omitempty"`
	CreatedAt     string `json:"created_at"`
	ExpiresAt     string `json:"expires_at"`
	MaxDownloads  int64  `json:"max_downloads"`
	DownloadCount int64  `json:"download_count"`
	HasPassword   bool   `json:"has_password"`
	Revoked       bool   `json:"revoked"`
	Usable        *bool  `json:"usable,omitempty"`
}

// ResolveShareRequest 公开访问分享的请求体
type ResolveShareRequest struct {
	Password string `json:"password"`
}

// ResolveShareResponse 公开访问分享的响应
type ResolveShareResponse struct {
	ShareID            string `json:"share_id"`
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	ContentType        string `json:"content_type"`
	DownloadURL        string `json:"download_url"`
	ExpiresAt          string `json:"expires_at"`
	RemainingDownloads int64  `json:"remaining_downloads"` // -1 表示不限
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// toFileResponse 转换为响应对象
func toFileResponse(f *biz.File) *FileResponse {
	tags := f.Tags
	if tags == nil {
		tags = []string{}
	}
	return &FileResponse{
		ID:           f.ID,
		Name:         f.Name,
		DeclaredSize: f.DeclaredSize,
		Size:         f.Size,
		ContentType:  f.ContentType,
		Tags:         tags,
		Status:       string(f.Status),
		Version:      f.StorageVersion,
		Checksum:     f.Checksum,
		CreatedAt:    formatTime(f.CreatedAt),
		ModifiedAt:   formatTime(f.ModifiedAt),
		DeletedAt:    formatTimePtr(f.DeletedAt),
	}
}

func toDownloadResponse(d *biz.DownloadResult) *DownloadResponse {
	return &DownloadResponse{
		FileID:      d.FileID,
		Name:        d.Name,
		Size:        d.Size,
		ContentType: d.ContentType,
		Version:     d.Version,
		DownloadURL: d.URL,
		ExpiresAt:   formatTime(d.ExpiresAt),
	}
}

func toShareResponse(s *biz.ShareLink) *ShareResponse {
	return &ShareResponse{
		ShareID:       s.ID,
		FileID:        s.FileID,
		CreatedAt:     formatTime(s.CreatedAt),
		ExpiresAt:     formatTime(s.ExpiresAt),
		MaxDownloads:  s.MaxDownloads,
		DownloadCount: s.DownloadCount,
		HasPassword:   s.HasPassword(),
		Revoked:       s.Revoked,
	}
}

func toAccessLogResponse(e *biz.AccessLogEntry) *AccessLogResponse {
	return &AccessLogResponse{
		ID:        e.ID,
		Action:    string(e.Action),
		Timestamp: formatTime(e.Timestamp),
		Success:   e.Success,
		Reason:    e.Reason,
		ShareID:   e.ShareID,
		Detail:    e.Detail,
		SourceIP:  e.SourceIP,
	}
}
