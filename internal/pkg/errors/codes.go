package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status, machine-readable kind and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Kind    string // Machine-readable error kind
	Message string // Error message
}

// Error kinds surfaced to clients
const (
	KindValidation       = "ValidationError"
	KindQuotaExceeded    = "QuotaExceeded"
	KindNotFound         = "NotFound"
	KindUploadNotFound   = "UploadNotFound"
	KindCapabilityFailed = "CapabilityIssuanceFailed"
	KindShareExpired     = "ShareExpired"
	KindShareRevoked     = "ShareRevoked"
	KindDownloadLimit    = "DownloadLimitReached"
	KindInvalidPassword  = "InvalidPassword"
	KindUnauthorized     = "Unauthorized"
	KindTooManyRequests  = "TooManyRequests"
	KindConflict         = "Conflict"
	KindInternal         = "InternalError"
)

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// Vault errors (6000-6999)
	ErrVaultQuotaExceeded    = 6000
	ErrVaultFileTooLarge     = 6001
	ErrVaultFileNotFound     = 6002
	ErrVaultUploadNotFound   = 6003
	ErrVaultCapabilityFailed = 6004
	ErrVaultShareNotFound    = 6005
	ErrVaultShareExpired     = 6006
	ErrVaultShareRevoked     = 6007
	ErrVaultDownloadLimit    = 6008
	ErrVaultInvalidPassword  = 6009
	ErrVaultStorageFailed    = 6010
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "", "Success"},

	// Common errors
	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, KindInternal, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, KindValidation, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, KindNotFound, "Resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, KindUnauthorized, "Unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, KindUnauthorized, "Forbidden"},
	ErrConflict:        {ErrConflict, http.StatusConflict, KindConflict, "Concurrent update conflict, retry the request"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, KindTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, KindValidation, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, KindInternal, "Service unavailable"},

	// Vault errors
	ErrVaultQuotaExceeded:    {ErrVaultQuotaExceeded, http.StatusForbidden, KindQuotaExceeded, "Storage quota exceeded"},
	ErrVaultFileTooLarge:     {ErrVaultFileTooLarge, http.StatusBadRequest, KindValidation, "File size exceeds limit"},
	ErrVaultFileNotFound:     {ErrVaultFileNotFound, http.StatusNotFound, KindNotFound, "File not found"},
	ErrVaultUploadNotFound:   {ErrVaultUploadNotFound, http.StatusNotFound, KindUploadNotFound, "Uploaded object not found, retry the transfer"},
	ErrVaultCapabilityFailed: {ErrVaultCapabilityFailed, http.StatusInternalServerError, KindCapabilityFailed, "Failed to issue storage URL"},
	ErrVaultShareNotFound:    {ErrVaultShareNotFound, http.StatusNotFound, KindNotFound, "Share not found"},
	ErrVaultShareExpired:     {ErrVaultShareExpired, http.StatusGone, KindShareExpired, "Share link has expired"},
	ErrVaultShareRevoked:     {ErrVaultShareRevoked, http.StatusGone, KindShareRevoked, "Share link has been revoked"},
	ErrVaultDownloadLimit:    {ErrVaultDownloadLimit, http.StatusForbidden, KindDownloadLimit, "Share download limit reached"},
	ErrVaultInvalidPassword:  {ErrVaultInvalidPassword, http.StatusUnauthorized, KindInvalidPassword, "Invalid share password"},
	ErrVaultStorageFailed:    {ErrVaultStorageFailed, http.StatusInternalServerError, KindInternal, "Storage operation failed"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetKind returns the machine-readable kind for a given error code
func GetKind(code int) string {
	return GetCode(code).Kind
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsServerError checks if the code represents a server error (5xx)
func IsServerError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 500
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
