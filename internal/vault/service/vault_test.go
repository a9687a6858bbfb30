package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/file-vault-backend/internal/auth"
	"github.com/lk2023060901/file-vault-backend/internal/auth/middleware"
	apperrors "github.com/lk2023060901/file-vault-backend/internal/pkg/errors"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var fixedTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// stubVault 以函数字段实现全部用例接口，未设置的方法返回存储错误
type stubVault struct {
	initiate  func(ownerID string, req *biz.InitiateUploadRequest) (*biz.InitiateUploadResult, error)
	complete  func(ownerID, fileID string) (*biz.CompleteUploadResult, error)
	download  func(ownerID, fileID string) (*biz.DownloadResult, error)
	getFile   func(ownerID, fileID string) (*biz.File, error)
	listFiles func(q *biz.ListFilesQuery) (*biz.FilePage, error)
	getQuota  func(ownerID string) (*biz.Quota, error)
	listLogs  func(ownerID, fileID string, limit int) ([]*biz.AccessLogEntry, error)
	deleteF   func(ownerID, fileID string) (*biz.DeleteResult, error)
	create    func(ownerID, fileID string, req *biz.CreateShareRequest) (*biz.CreateShareResult, error)
	resolve   func(ctx context.Context, shareID, password string) (*biz.ResolveShareResult, error)
	listS     func(ownerID, fileID string) ([]*biz.ShareView, error)
	revoke    func(ownerID, shareID string) (*biz.ShareLink, error)
}

var errUnset = fmt.Errorf("%w: not configured", biz.ErrStoreFailure)

func (s *stubVault) InitiateUpload(_ context.Context, ownerID string, req *biz.InitiateUploadRequest) (*biz.InitiateUploadResult, error) {
	if s.initiate == nil {
		return nil, errUnset
	}
	return s.initiate(ownerID, req)
}

func (s *stubVault) CompleteUpload(_ context.Context, ownerID, fileID string) (*biz.CompleteUploadResult, error) {
	if s.complete == nil {
		return nil, errUnset
	}
	return s.complete(ownerID, fileID)
}

func (s *stubVault) RequestDownload(_ context.Context, ownerID, fileID string) (*biz.DownloadResult, error) {
	if s.download == nil {
		return nil, errUnset
	}
	return s.download(ownerID, fileID)
}

func (s *stubVault) GetFile(_ context.Context, ownerID, fileID string) (*biz.File, error) {
	if s.getFile == nil {
		return nil, errUnset
	}
	return s.getFile(ownerID, fileID)
}

func (s *stubVault) ListFiles(_ context.Context, q *biz.ListFilesQuery) (*biz.FilePage, error) {
	if s.listFiles == nil {
		return nil, errUnset
	}
	return s.listFiles(q)
}

func (s *stubVault) GetQuota(_ context.Context, ownerID string) (*biz.Quota, error) {
	if s.getQuota == nil {
		return nil, errUnset
	}
	return s.getQuota(ownerID)
}

func (s *stubVault) ListAccessLogs(_ context.Context, ownerID, fileID string, limit int) ([]*biz.AccessLogEntry, error) {
	if s.listLogs == nil {
		return nil, errUnset
	}
	return s.listLogs(ownerID, fileID, limit)
}

func (s *stubVault) DeleteFile(_ context.Context, ownerID, fileID string) (*biz.DeleteResult, error) {
	if s.deleteF == nil {
		return nil, errUnset
	}
	return s.deleteF(ownerID, fileID)
}

func (s *stubVault) CreateShare(_ context.Context, ownerID, fileID string, req *biz.CreateShareRequest) (*biz.CreateShareResult, error) {
	if s.create == nil {
		return nil, errUnset
	}
	return s.create(ownerID, fileID, req)
}

func (s *stubVault) ResolveShare(ctx context.Context, shareID, password string) (*biz.ResolveShareResult, error) {
	if s.resolve == nil {
		return nil, errUnset
	}
	return s.resolve(ctx, shareID, password)
}

func (s *stubVault) ListShares(_ context.Context, ownerID, fileID string) ([]*biz.ShareView, error) {
	if s.listS == nil {
		return nil, errUnset
	}
	return s.listS(ownerID, fileID)
}

func (s *stubVault) RevokeShare(_ context.Context, ownerID, shareID string) (*biz.ShareLink, error) {
	if s.revoke == nil {
		return nil, errUnset
	}
	return s.revoke(ownerID, shareID)
}

type envelope struct {
	Code    int             `json:"code"`
	Kind    string          `json:"kind"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	token  string
}

func newTestServer(t *testing.T, stub *stubVault) *testServer {
	t.Helper()

	jwt := auth.NewJWTManager("test-secret", "file-vault")
	token, err := jwt.GenerateAccessToken("owner-1", time.Minute)
	require.NoError(t, err)

	svc := &VaultService{
		upload:    stub,
		retrieval: stub,
		deletion:  stub,
		share:     stub,
		logger:    logger.Nop(),
	}

	router := gin.New()
	svc.RegisterRoutes(router.Group("/api/v1", middleware.JWTAuth(jwt, logger.Nop())))
	svc.RegisterPublicRoutes(router.Group("/share"))

	return &testServer{router: router, token: token}
}

func (ts *testServer) do(t *testing.T, method, path, body string, authed bool) (int, *envelope) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	req.RemoteAddr = "203.0.113.7:5555"

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, &env
}

func completedFile() *biz.File {
	version, checksum := "v1", "abc"
	return &biz.File{
		ID:             "f-1",
		OwnerID:        "owner-1",
		Name:           "report.pdf",
		DeclaredSize:   100,
		Size:           100,
		ContentType:    "application/pdf",
		Status:         biz.FileStatusCompleted,
		StorageVersion: &version,
		Checksum:       &checksum,
		CreatedAt:      fixedTime,
		ModifiedAt:     fixedTime,
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err        error
		wantCode   int
		wantStatus int
	}{
		{fmt.Errorf("%w: name", biz.ErrMissingField), apperrors.ErrInvalidParams, http.StatusBadRequest},
		{biz.ErrInvalidArgument, apperrors.ErrInvalidParams, http.StatusBadRequest},
		{biz.ErrInvalidCursor, apperrors.ErrInvalidParams, http.StatusBadRequest},
		{biz.ErrFileTooLarge, apperrors.ErrVaultFileTooLarge, http.StatusBadRequest},
		{biz.ErrQuotaExceeded, apperrors.ErrVaultQuotaExceeded, http.StatusForbidden},
		{biz.ErrFileNotFound, apperrors.ErrVaultFileNotFound, http.StatusNotFound},
		{biz.ErrUploadNotFound, apperrors.ErrVaultUploadNotFound, http.StatusNotFound},
		{errors.Join(biz.ErrCapabilityIssuance, errors.New("bad url")), apperrors.ErrVaultCapabilityFailed, http.StatusInternalServerError},
		{biz.ErrShareNotFound, apperrors.ErrVaultShareNotFound, http.StatusNotFound},
		{biz.ErrShareExpired, apperrors.ErrVaultShareExpired, http.StatusGone},
		{biz.ErrShareRevoked, apperrors.ErrVaultShareRevoked, http.StatusGone},
		{biz.ErrDownloadLimitReached, apperrors.ErrVaultDownloadLimit, http.StatusForbidden},
		{biz.ErrInvalidPassword, apperrors.ErrVaultInvalidPassword, http.StatusUnauthorized},
		{fmt.Errorf("%w: 40001", biz.ErrConflict), apperrors.ErrConflict, http.StatusConflict},
		{fmt.Errorf("%w: probe: timeout", biz.ErrStoreFailure), apperrors.ErrVaultStorageFailed, http.StatusInternalServerError},
		{errors.New("unexpected"), apperrors.ErrVaultStorageFailed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			code := errorCode(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, apperrors.GetHTTPStatus(code))
		})
	}
}

func TestRoutes_RequireAuth(t *testing.T) {
	ts := newTestServer(t, &stubVault{})

	status, env := ts.do(t, http.MethodGet, "/api/v1/files", "", false)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apperrors.KindUnauthorized, env.Kind)
}

func TestInitiateUpload(t *testing.T) {
	var gotOwner string
	var gotReq *biz.InitiateUploadRequest
	stub := &stubVault{
		initiate: func(ownerID string, req *biz.InitiateUploadRequest) (*biz.InitiateUploadResult, error) {
			gotOwner, gotReq = ownerID, req
			if req.DeclaredSize > 5<<30 {
				return nil, fmt.Errorf("%w: %d bytes", biz.ErrFileTooLarge, req.DeclaredSize)
			}
			return &biz.InitiateUploadResult{
				FileID:    "f-1",
				UploadURL: "https://s3.test/bucket/users/owner-1/files/f-1?X-Amz-Signature=x",
				ExpiresAt: fixedTime.Add(time.Hour),
			}, nil
		},
	}
	ts := newTestServer(t, stub)

	status, env := ts.do(t, http.MethodPost, "/api/v1/files/uploads",
		`{"name":"a.txt","size":10,"content_type":"text/plain","tags":["x"]}`, true)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "owner-1", gotOwner)
	assert.Equal(t, &biz.InitiateUploadRequest{Name: "a.txt", DeclaredSize: 10, ContentType: "text/plain", Tags: []string{"x"}}, gotReq)

	var resp InitiateUploadResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "f-1", resp.FileID)
	assert.Equal(t, "2025-03-01T13:00:00Z", resp.ExpiresAt)

	status, env = ts.do(t, http.MethodPost, "/api/v1/files/uploads", `{"name":"big","size":6000000000}`, true)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperrors.ErrVaultFileTooLarge, env.Code)
	assert.Equal(t, apperrors.KindValidation, env.Kind)

	status, env = ts.do(t, http.MethodPost, "/api/v1/files/uploads", `{"size":1}`, true)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperrors.ErrInvalidParams, env.Code)
}

func TestCompleteUpload_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"object missing", biz.ErrUploadNotFound, http.StatusNotFound, apperrors.KindUploadNotFound},
		{"unknown file", biz.ErrFileNotFound, http.StatusNotFound, apperrors.KindNotFound},
		{"store down", fmt.Errorf("%w: probe: dial tcp", biz.ErrStoreFailure), http.StatusInternalServerError, apperrors.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &stubVault{
				complete: func(string, string) (*biz.CompleteUploadResult, error) { return nil, tt.err },
			})

			status, env := ts.do(t, http.MethodPost, "/api/v1/files/f-1/complete", "", true)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantKind, env.Kind)
			assert.NotContains(t, env.Message, "dial tcp")
		})
	}
}

func TestCompleteUpload(t *testing.T) {
	ts := newTestServer(t, &stubVault{
		complete: func(ownerID, fileID string) (*biz.CompleteUploadResult, error) {
			assert.Equal(t, "f-1", fileID)
			return &biz.CompleteUploadResult{File: completedFile(), AlreadyCompleted: true}, nil
		},
	})

	status, env := ts.do(t, http.MethodPost, "/api/v1/files/f-1/complete", "", true)
	require.Equal(t, http.StatusOK, status)

	var resp CompleteUploadResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.True(t, resp.AlreadyCompleted)
	assert.Equal(t, "completed", resp.File.Status)
	require.NotNil(t, resp.File.Version)
	assert.Equal(t, "v1", *resp.File.Version)
	assert.Equal(t, []string{}, resp.File.Tags)
}

func TestListFiles(t *testing.T) {
	var got *biz.ListFilesQuery
	ts := newTestServer(t, &stubVault{
		listFiles: func(q *biz.ListFilesQuery) (*biz.FilePage, error) {
			got = q
			if q.Cursor == "bad" {
				return nil, biz.ErrInvalidCursor
			}
			return &biz.FilePage{Files: []*biz.File{completedFile()}, NextCursor: "next"}, nil
		},
	})

	status, env := ts.do(t, http.MethodGet, "/api/v1/files?limit=10&status=completed,deleted&status=uploading", "", true)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "owner-1", got.OwnerID)
	assert.Equal(t, 10, got.Limit)
	assert.Equal(t, []biz.FileStatus{biz.FileStatusCompleted, biz.FileStatusDeleted, biz.FileStatusUploading}, got.Statuses)

	var resp ListFilesResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "next", resp.NextCursor)

	status, _ = ts.do(t, http.MethodGet, "/api/v1/files?cursor=bad", "", true)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(t, http.MethodGet, "/api/v1/files?limit=0x", "", true)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRequestDownload(t *testing.T) {
	ts := newTestServer(t, &stubVault{
		download: func(ownerID, fileID string) (*biz.DownloadResult, error) {
			if fileID != "f-1" {
				return nil, biz.ErrFileNotFound
			}
			return &biz.DownloadResult{
				FileID:    fileID,
				Name:      "report.pdf",
				Size:      100,
				Version:   "v1",
				URL:       "https://s3.test/bucket/users/owner-1/files/f-1?versionId=v1",
				ExpiresAt: fixedTime.Add(time.Hour),
			}, nil
		},
	})

	status, env := ts.do(t, http.MethodGet, "/api/v1/files/f-1/download", "", true)
	require.Equal(t, http.StatusOK, status)
	var resp DownloadResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "v1", resp.Version)
	assert.Contains(t, resp.DownloadURL, "versionId=v1")

	status, env = ts.do(t, http.MethodGet, "/api/v1/files/f-2/download", "", true)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, apperrors.ErrVaultFileNotFound, env.Code)
}

func TestDeleteFile(t *testing.T) {
	ts := newTestServer(t, &stubVault{
		deleteF: func(ownerID, fileID string) (*biz.DeleteResult, error) {
			return &biz.DeleteResult{FileID: fileID, Status: biz.FileStatusAbandoned, Cancelled: true}, nil
		},
	})

	status, env := ts.do(t, http.MethodDelete, "/api/v1/files/f-1", "", true)
	require.Equal(t, http.StatusOK, status)
	var resp DeleteFileResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "abandoned", resp.Status)
	assert.True(t, resp.Cancelled)
}

func TestGetQuota(t *testing.T) {
	ts := newTestServer(t, &stubVault{
		getQuota: func(ownerID string) (*biz.Quota, error) {
			return &biz.Quota{OwnerID: ownerID, StorageUsed: 25, StorageQuota: 100}, nil
		},
	})

	status, env := ts.do(t, http.MethodGet, "/api/v1/quota", "", true)
	require.Equal(t, http.StatusOK, status)
	var resp QuotaResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, QuotaResponse{StorageUsed: 25, StorageQuota: 100, Available: 75, UsagePercent: 25}, resp)
}

func TestListAccessLogs(t *testing.T) {
	shareID := "s-1"
	ts := newTestServer(t, &stubVault{
		listLogs: func(ownerID, fileID string, limit int) ([]*biz.AccessLogEntry, error) {
			assert.Equal(t, 5, limit)
			return []*biz.AccessLogEntry{{
				ID:        "l-1",
				FileID:    fileID,
				OwnerID:   ownerID,
				Action:    biz.ActionDownload,
				Timestamp: fixedTime,
				Success:   true,
				ShareID:   &shareID,
				Detail:    biz.DetailViaShare,
				SourceIP:  "203.0.113.7",
			}}, nil
		},
	})

	status, env := ts.do(t, http.MethodGet, "/api/v1/files/f-1/logs?limit=5", "", true)
	require.Equal(t, http.StatusOK, status)
	var resp []AccessLogResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "download", resp[0].Action)
	assert.Equal(t, "via_share", resp[0].Detail)
}

func TestCreateAndListShares(t *testing.T) {
	hash := "hash"
	link := &biz.ShareLink{
		ID:           "s-1",
		FileID:       "f-1",
		CreatedBy:    "owner-1",
		CreatedAt:    fixedTime,
		ExpiresAt:    fixedTime.Add(time.Hour),
		MaxDownloads: 2,
		PasswordHash: &hash,
	}
	var gotReq *biz.CreateShareRequest
	ts := newTestServer(t, &stubVault{
		create: func(ownerID, fileID string, req *biz.CreateShareRequest) (*biz.CreateShareResult, error) {
			gotReq = req
			return &biz.CreateShareResult{Share: link, ShareURL: "https://vault.test/share/s-1"}, nil
		},
		listS: func(ownerID, fileID string) ([]*biz.ShareView, error) {
			return []*biz.ShareView{{ShareLink: link, Usable: true}}, nil
		},
	})

	status, env := ts.do(t, http.MethodPost, "/api/v1/files/f-1/shares",
		`{"expires_in_seconds":3600,"max_downloads":2,"password":"x"}`, true)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, &biz.CreateShareRequest{ExpiresInSeconds: 3600, MaxDownloads: 2, Password: "x"}, gotReq)

	var created ShareResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "https://vault.test/share/s-1", created.ShareURL)
	assert.True(t, created.HasPassword)
	assert.NotContains(t, string(env.Data), "hash")

	status, env = ts.do(t, http.MethodGet, "/api/v1/files/f-1/shares", "", true)
	require.Equal(t, http.StatusOK, status)
	var listed []ShareResponse
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].Usable)
	assert.True(t, *listed[0].Usable)
}

func TestRevokeShare(t *testing.T) {
	ts := newTestServer(t, &stubVault{
		revoke: func(ownerID, shareID string) (*biz.ShareLink, error) {
			if shareID != "s-1" {
				return nil, biz.ErrShareNotFound
			}
			return &biz.ShareLink{ID: shareID, FileID: "f-1", Revoked: true, CreatedAt: fixedTime, ExpiresAt: fixedTime}, nil
		},
	})

	status, env := ts.do(t, http.MethodDelete, "/api/v1/shares/s-1", "", true)
	require.Equal(t, http.StatusOK, status)
	var resp ShareResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.True(t, resp.Revoked)

	status, env = ts.do(t, http.MethodDelete, "/api/v1/shares/s-9", "", true)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, apperrors.ErrVaultShareNotFound, env.Code)
}

func TestResolveShare(t *testing.T) {
	var gotIP string
	ts := newTestServer(t, &stubVault{
		resolve: func(ctx context.Context, shareID, password string) (*biz.ResolveShareResult, error) {
			gotIP = biz.SourceIPFromContext(ctx)
			switch {
			case shareID == "gone":
				return nil, biz.ErrShareExpired
			case shareID == "used":
				return nil, biz.ErrDownloadLimitReached
			case password != "x":
				return nil, biz.ErrInvalidPassword
			}
			return &biz.ResolveShareResult{
				ShareID: shareID,
				Download: &biz.DownloadResult{
					FileID:    "f-1",
					Name:      "report.pdf",
					Size:      100,
					URL:       "https://s3.test/bucket/users/owner-1/files/f-1?versionId=v1",
					ExpiresAt: fixedTime.Add(time.Hour),
				},
				RemainingDownloads: 1,
			}, nil
		},
	})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantKind   string
	}{
		{"password in body", http.MethodPost, "/share/s-1", `{"password":"x"}`, http.StatusOK, ""},
		{"get without password", http.MethodGet, "/share/s-1", "", http.StatusUnauthorized, apperrors.KindInvalidPassword},
		{"post without body", http.MethodPost, "/share/s-1", "", http.StatusUnauthorized, apperrors.KindInvalidPassword},
		{"expired", http.MethodGet, "/share/gone", "", http.StatusGone, apperrors.KindShareExpired},
		{"limit reached", http.MethodGet, "/share/used", "", http.StatusForbidden, apperrors.KindDownloadLimit},
		{"malformed body", http.MethodPost, "/share/s-1", `{"password":`, http.StatusBadRequest, apperrors.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := ts.do(t, tt.method, tt.path, tt.body, false)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantKind, env.Kind)
		})
	}

	_, env := ts.do(t, http.MethodPost, "/share/s-1", `{"password":"x"}`, false)
	var resp ResolveShareResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, int64(1), resp.RemainingDownloads)
	assert.Equal(t, "report.pdf", resp.Name)
	assert.Equal(t, "203.0.113.7", gotIP)
}
