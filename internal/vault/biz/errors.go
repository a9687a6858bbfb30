package biz

import (
	"errors"
	"fmt"

	apperrors "github.com/lk2023060901/file-vault-backend/internal/pkg/errors"
)

var (
	// ErrMissingField 缺少必填字段
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidArgument 参数不合法
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidCursor 分页游标无法解析
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrFileTooLarge 文件超过单文件大小上限
	ErrFileTooLarge = errors.New("file exceeds maximum size")
	// ErrQuotaExceeded 超出存储配额
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrFileNotFound 文件不存在、不属于调用方或状态不允许该操作
	ErrFileNotFound = errors.New("file not found")
	// ErrUploadNotFound 确认上传时对象存储中没有对应对象
	ErrUploadNotFound = errors.New("uploaded object not found")
	// ErrCapabilityIssuance 签发预签名地址失败或地址不合法
	ErrCapabilityIssuance = errors.New("failed to issue storage capability")
	// ErrStoreFailure 元数据或对象存储不可用
	ErrStoreFailure = errors.New("store failure")
	// ErrConflict 并发事务冲突（序列化失败、死锁、主键冲突），可整体重试
	ErrConflict = errors.New("concurrent update conflict")

	// ErrShareNotFound 分享不存在
	ErrShareNotFound = errors.New("share not found")
	// ErrShareRevoked 分享已撤销
	ErrShareRevoked = errors.New("share has been revoked")
	// ErrShareExpired 分享已过期
	ErrShareExpired = errors.New("share has expired")
	// ErrDownloadLimitReached 分享下载次数已用完
	ErrDownloadLimitReached = errors.New("share download limit reached")
	// ErrInvalidPassword 分享密码错误
	ErrInvalidPassword = errors.New("invalid share password")
)

// ErrorKind 返回错误对应的机器可读类别，用于审计原因和指标标签
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingField),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrInvalidCursor),
		errors.Is(err, ErrFileTooLarge):
		return apperrors.KindValidation
	case errors.Is(err, ErrQuotaExceeded):
		return apperrors.KindQuotaExceeded
	case errors.Is(err, ErrFileNotFound), errors.Is(err, ErrShareNotFound):
		return apperrors.KindNotFound
	case errors.Is(err, ErrUploadNotFound):
		return apperrors.KindUploadNotFound
	case errors.Is(err, ErrCapabilityIssuance):
		return apperrors.KindCapabilityFailed
	case errors.Is(err, ErrShareRevoked):
		return apperrors.KindShareRevoked
	case errors.Is(err, ErrShareExpired):
		return apperrors.KindShareExpired
	case errors.Is(err, ErrDownloadLimitReached):
		return apperrors.KindDownloadLimit
	case errors.Is(err, ErrInvalidPassword):
		return apperrors.KindInvalidPassword
	case errors.Is(err, ErrConflict):
		return apperrors.KindConflict
	default:
		return apperrors.KindInternal
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return ErrorKind(err)
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// storeErr 包装存储层错误；已是业务错误的原样返回
func storeErr(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}

func isDomainError(err error) bool {
	return ErrorKind(err) != apperrors.KindInternal || errors.Is(err, ErrStoreFailure)
}
