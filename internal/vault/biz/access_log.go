package biz

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
)

// AccessAction 审计动作
type AccessAction string

const (
	ActionUpload   AccessAction = "upload"
	ActionDownload AccessAction = "download"
	ActionDelete   AccessAction = "delete"
	ActionShare    AccessAction = "share"
)

// 审计附加说明
const (
	DetailViaShare  = "via_share"
	DetailRevoked   = "revoked"
	DetailCancelled = "cancelled"
	DetailCreated   = "created"
)

// AccessLogEntry 审计日志，写入后不可修改
type AccessLogEntry struct {
	ID        string
	FileID    string
	OwnerID   string
	Action    AccessAction
	Timestamp time.Time
	Success   bool
	Reason    string
	ShareID   *string
	Detail    string
	SourceIP  string
	ExpiresAt time.Time
}

// AccessLogRepo 审计日志仓储
type AccessLogRepo interface {
	Append(ctx context.Context, e *AccessLogEntry) error
	ListByFile(ctx context.Context, fileID, ownerID string, now time.Time, limit int) ([]*AccessLogEntry, error)
	// PurgeExpired 删除 expiresAt <= now 的记录，返回删除条数
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// auditor 负责填充并写入审计日志；写入失败只记录日志和指标，不影响已提交的操作
type auditor struct {
	repo      AccessLogRepo
	retention time.Duration
	now       func() time.Time
	log       *logger.Logger
}

func (a *auditor) record(ctx context.Context, e *AccessLogEntry) {
	e.ID = uuid.NewString()
	e.Timestamp = a.now()
	e.ExpiresAt = e.Timestamp.Add(a.retention)
	if e.SourceIP == "" {
		e.SourceIP = SourceIPFromContext(ctx)
	}

	if err := a.repo.Append(ctx, e); err != nil {
		accessLogWriteFailures.Inc()
		a.log.WithContext(ctx).Error("failed to append access log",
			zap.String("file_id", e.FileID),
			zap.String("action", string(e.Action)),
			zap.Bool("success", e.Success),
			zap.Error(err),
		)
	}
}

func (a *auditor) success(ctx context.Context, f *File, action AccessAction, detail string, shareID *string) {
	a.record(ctx, &AccessLogEntry{
		FileID:  f.ID,
		OwnerID: f.OwnerID,
		Action:  action,
		Success: true,
		Detail:  detail,
		ShareID: shareID,
	})
}

func (a *auditor) failure(ctx context.Context, fileID, ownerID string, action AccessAction, cause error, detail string, shareID *string) {
	a.record(ctx, &AccessLogEntry{
		FileID:  fileID,
		OwnerID: ownerID,
		Action:  action,
		Success: false,
		Reason:  ErrorKind(cause),
		Detail:  detail,
		ShareID: shareID,
	})
}
