package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/auth/middleware"
	apperrors "github.com/lk2023060901/file-vault-backend/internal/pkg/errors"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/response"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/validator"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
)

// UploadUseCase 上传协调器
type UploadUseCase interface {
	InitiateUpload(ctx context.Context, ownerID string, req *biz.InitiateUploadRequest) (*biz.InitiateUploadResult, error)
	CompleteUpload(ctx context.Context, ownerID, fileID string) (*biz.CompleteUploadResult, error)
}

// RetrievalUseCase 读取协调器
type RetrievalUseCase interface {
	RequestDownload(ctx context.Context, ownerID, fileID string) (*biz.DownloadResult, error)
	GetFile(ctx context.Context, ownerID, fileID string) (*biz.File, error)
	ListFiles(ctx context.Context, q *biz.ListFilesQuery) (*biz.FilePage, error)
	GetQuota(ctx context.Context, ownerID string) (*biz.Quota, error)
	ListAccessLogs(ctx context.Context, ownerID, fileID string, limit int) ([]*biz.AccessLogEntry, error)
}

// DeletionUseCase 删除协调器
type DeletionUseCase interface {
	DeleteFile(ctx context.Context, ownerID, fileID string) (*biz.DeleteResult, error)
}

// ShareUseCase 分享协调器
type ShareUseCase interface {
	CreateShare(ctx context.Context, ownerID, fileID string, req *biz.CreateShareRequest) (*biz.CreateShareResult, error)
	ResolveShare(ctx context.Context, shareID, password string) (*biz.ResolveShareResult, error)
	ListShares(ctx context.Context, ownerID, fileID string) ([]*biz.ShareView, error)
	RevokeShare(ctx context.Context, ownerID, shareID string) (*biz.ShareLink, error)
}

// VaultService 文件保险库 HTTP 服务
type VaultService struct {
	upload    UploadUseCase
	retrieval RetrievalUseCase
	deletion  DeletionUseCase
	share     ShareUseCase
	logger    *logger.Logger
}

// NewVaultService 创建文件保险库服务
func NewVaultService(vault *biz.Vault, logger *logger.Logger) *VaultService {
	return &VaultService{
		upload:    vault.Upload,
		retrieval: vault.Retrieval,
		deletion:  vault.Deletion,
		share:     vault.Share,
		logger:    logger,
	}
}

// RegisterRoutes 注册需要认证的路由
func (s *VaultService) RegisterRoutes(r *gin.RouterGroup) {
	files := r.Group("/files")
	{
		files.POST("/uploads", s.InitiateUpload)
		files.GET("", s.ListFiles)
		files.GET("/:file_id", s.GetFile)
		files.POST("/:file_id/complete", s.CompleteUpload)
		files.GET("/:file_id/download", s.RequestDownload)
		files.DELETE("/:file_id", s.DeleteFile)
		files.POST("/:file_id/shares", s.CreateShare)
		files.GET("/:file_id/shares", s.ListShares)
		files.GET("/:file_id/logs", s.ListAccessLogs)
	}

	r.DELETE("/shares/:share_id", s.RevokeShare)
	r.GET("/quota", s.GetQuota)
}

// RegisterPublicRoutes 注册无需认证的分享访问路由
func (s *VaultService) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/:share_id", s.ResolveShare)
	r.POST("/:share_id", s.ResolveShare)
}

// InitiateUpload 发起上传
func (s *VaultService) InitiateUpload(c *gin.Context) {
	ownerID, ok := s.owner(c)
	if !ok {
		return
	}

	var req InitiateUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := s.upload.InitiateUpload(requestContext(c), ownerID, &biz.InitiateUploadRequest{
		Name:         req.Name,
		DeclaredSize: req.Size,
		ContentType:  req.ContentType,
		Tags:         req.Tags,
	})
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Created(c, &InitiateUploadResponse{
		FileID:    res.FileID,
		UploadURL: res.UploadURL,
		ExpiresAt: formatTime(res.ExpiresAt),
	})
}

// CompleteUpload 确认上传完成
func (s *VaultService) CompleteUpload(c *gin.Context) {
	ownerID, ok := s.owner(c)
	if !ok {
		return
	}

	res, err := s.upload.CompleteUpload(requestContext(c), ownerID, c.Param("file_id"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, &CompleteUploadResponse{
		File:             toFileResponse(res.File),
		AlreadyCompleted: res.AlreadyCompleted,
	})
}

// ListFiles 获取文件列表
func (s *VaultService) ListFiles(c *gin.Context) {
	ownerID, ok := s.owner(c)
	if !ok {
		return
	}

	var req ListFilesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	q := &biz.ListFilesQuery{
		OwnerID: ownerID,
		Limit:   req.Limit,
		Cursor:  req.Cursor,
	}
	for _, raw := range req.Status {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				q.Statuses = append(q.Statuses, biz.FileStatus(st))
			}
		}
	}

	page, err := s.retrieval.ListFiles(requestContext(c), q)
	if err != nil {
		s.handleError(c, err)
		return
	}

	items := make([]*FileResponse, len(page.Files))
	for i, f := range page.Files {
		items[i] = toFileResponse(f)
	}

	response.Success(c, &ListFilesResponse{
		Items:      items,
		NextCursor: page.NextCursor,
	})
}

// GetFile 获取文件元数据
func (s *VaultService) GetFile(c *gin.Context) {
	ownerID, ok := s.owner(c)
	if !ok {
		return
	}

	f, err := s.retrieval.GetFile(requestContext(c), ownerID, c.Param("file_id"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, toFileResponse(f))
}

// RequestDownload 获取绑定版本的下载凭证
func (s *VaultService) RequestDownload(c *gin.Context) {
	ownerID, ok := s.owner(c)
	if !ok {
		return
	}

	res, err := s.retrieval.RequestDownload(requestContext(c), ownerID, c.Param("file_id"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, toDownloadResponse(res))
}

// DeleteFile 删除文件；上传中的文件会被取消
func (s *VaultService) DeleteFile(c *gin.Context) {
	ownerID, ok := s.owner(c)
	if !ok {
		return
	}

	res, err := s.deletion.DeleteFile(requestContext(c), ownerID, c.Param("file_id"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, &DeleteFileResponse{
		FileID:         res.FileID,
		Status:         string(res.Status),
		AlreadyDeleted: res.AlreadyDeleted,
		Cancelled:      res.Cancelled,
	})
}

// GetQuota 获取配额
func (s *VaultService) GetQuota(c *gin.Context) {
	ownerID, ok := s.owner(c)
	if !ok {
		return
	}

	q, err := s.retrieval.GetQuota(requestContext(c), ownerID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, &QuotaResponse{
		StorageUsed:  q.StorageUsed,
		StorageQuota: q.StorageQuota,
		Available:    q.Available(),
		UsagePercent: q.UsagePercent(),
	})
}

// ListAccessLogs 获取文件审计日志
func (s *VaultService) ListAccessLogs(c *gin.Context) {
	ownerID, ok := s.owner(c)
	if !ok {
		return
	}

	var req ListAccessLogsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	entries, err := s.retrieval.ListAccessLogs(requestContext(c), ownerID, c.Param("file_id"), req.Limit)
	if err != nil {
		s.handleError(c, err)
		return
	}

	items := make([]*AccessLogResponse, len(entries))
	for i, e := range entries {
		items[i] = toAccessLogResponse(e)
	}

	response.Success(c, items)
}

// CreateShare 创建分享链接
func (s *VaultService) CreateShare(c *gin.Context) {
	ownerID, ok := s.owner(c)
	if !ok {
		return
	}

	var req CreateShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	res, err := s.share.CreateShare(requestContext(c), ownerID, c.Param("file_id"), &biz.CreateShareRequest{
		ExpiresInSeconds: req.ExpiresInSeconds,
		MaxDownloads:     req.MaxDownloads,
		Password:         req.Password,
	})
	if err != nil {
		s.handleError(c, err)
		return
	}

	resp := toShareResponse(res.Share)
	resp.ShareURL = res.ShareURL
	response.Created(c, resp)
}

// ListShares 获取文件的分享链接
func (s *VaultService) ListShares(c *gin.Context) {
	ownerID, ok := s.owner(c)
	if !ok {
		return
	}

	views, err := s.share.ListShares(requestContext(c), ownerID, c.Param("file_id"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	items := make([]*ShareResponse, len(views))
	for i, v := range views {
		items[i] = toShareResponse(v.ShareLink)
		usable := v.Usable
		items[i].Usable = &usable
	}

	response.Success(c, items)
}

// RevokeShare 撤销分享链接
func (s *VaultService) RevokeShare(c *gin.Context) {
	ownerID, ok := s.owner(c)
	if !ok {
		return
	}

	share, err := s.share.RevokeShare(requestContext(c), ownerID, c.Param("share_id"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, toShareResponse(share))
}

// ResolveShare 公开访问分享；密码通过 POST 请求体提交
func (s *VaultService) ResolveShare(c *gin.Context) {
	var req ResolveShareRequest
	if c.Request.Method == "POST" && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	res, err := s.share.ResolveShare(requestContext(c), c.Param("share_id"), req.Password)
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, &ResolveShareResponse{
		ShareID:            res.ShareID,
		Name:               res.Download.Name,
		Size:               res.Download.Size,
		ContentType:        res.Download.ContentType,
		DownloadURL:        res.Download.URL,
		ExpiresAt:          formatTime(res.Download.ExpiresAt),
		RemainingDownloads: res.RemainingDownloads,
	})
}

// owner 读取认证中间件注入的 ownerId
func (s *VaultService) owner(c *gin.Context) (string, bool) {
	ownerID, ok := middleware.GetOwnerID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return "", false
	}
	return ownerID, true
}

// requestContext 将客户端 IP 写入业务 ctx，供审计日志使用
func requestContext(c *gin.Context) context.Context {
	ip := validator.SourceIP(c.ClientIP())
	return biz.WithSourceIP(c.Request.Context(), ip)
}

// errorCode 将领域错误映射为业务错误码
func errorCode(err error) int {
	switch {
	case errors.Is(err, biz.ErrFileTooLarge):
		return apperrors.ErrVaultFileTooLarge
	case errors.Is(err, biz.ErrMissingField),
		errors.Is(err, biz.ErrInvalidArgument),
		errors.Is(err, biz.ErrInvalidCursor):
		return apperrors.ErrInvalidParams
	case errors.Is(err, biz.ErrQuotaExceeded):
		return apperrors.ErrVaultQuotaExceeded
	case errors.Is(err, biz.ErrFileNotFound):
		return apperrors.ErrVaultFileNotFound
	case errors.Is(err, biz.ErrUploadNotFound):
		return apperrors.ErrVaultUploadNotFound
	case errors.Is(err, biz.ErrCapabilityIssuance):
		return apperrors.ErrVaultCapabilityFailed
	case errors.Is(err, biz.ErrShareNotFound):
		return apperrors.ErrVaultShareNotFound
	case errors.Is(err, biz.ErrShareExpired):
		return apperrors.ErrVaultShareExpired
	case errors.Is(err, biz.ErrShareRevoked):
		return apperrors.ErrVaultShareRevoked
	case errors.Is(err, biz.ErrDownloadLimitReached):
		return apperrors.ErrVaultDownloadLimit
	case errors.Is(err, biz.ErrInvalidPassword):
		return apperrors.ErrVaultInvalidPassword
	case errors.Is(err, biz.ErrConflict):
		return apperrors.ErrConflict
	default:
		return apperrors.ErrVaultStorageFailed
	}
}

func (s *VaultService) handleError(c *gin.Context, err error) {
	appErr := apperrors.Wrap(err, errorCode(err))
	log := s.logger.WithContext(c.Request.Context())

	if apperrors.IsServerError(appErr.Code) {
		log.Error("vault operation failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	} else {
		log.Debug("vault request rejected",
			zap.String("path", c.FullPath()),
			zap.Int("code", appErr.Code),
			zap.Error(err))
	}

	// 仅参数类错误向客户端附带原因，存储层细节不外泄
	response.HandleError(c, appErr)
}
