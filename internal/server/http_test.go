package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/file-vault-backend/internal/auth"
	"github.com/lk2023060901/file-vault-backend/internal/conf"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
	"github.com/lk2023060901/file-vault-backend/internal/vault/service"
)

// denyAll 模拟窗口已满的限流脚本结果
type denyAll struct{}

func (denyAll) Eval(context.Context, string, []string, ...interface{}) (interface{}, error) {
	return []interface{}{int64(0), int64(0), time.Now().Add(time.Minute).UnixMilli()}, nil
}

func newTestRouter(t *testing.T, mutate func(cfg *conf.Config, opts *Options)) http.Handler {
	t.Helper()

	cfg := conf.Default()
	cfg.Server.Mode = gin.TestMode
	jwt := auth.NewJWTManager("secret", cfg.Auth.JWTIssuer)

	opts := Options{JWT: jwt}
	if mutate != nil {
		mutate(cfg, &opts)
	}

	vault := biz.NewVault(biz.Stores{}, biz.Options{}, logger.Nop())
	svc := service.NewVaultService(vault, logger.Nop())
	return NewRouter(cfg, logger.Nop(), svc, opts)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no dependencies",
			wantStatus: http.StatusOK,
			wantBody:   `"status":"ok"`,
		},
		{
			name: "database down",
			checks: map[string]HealthCheck{
				"database": func(context.Context) error { return errors.New("connection refused") },
				"redis":    func(context.Context) error { return nil },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, func(_ *conf.Config, opts *Options) {
				opts.HealthChecks = tt.checks
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestMetrics_Gzip(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "vault_access_log_write_failures_total")
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := auth.NewJWTManager("other-secret", "file-vault")
	token, err := other.GenerateAccessToken("owner-1", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestShare_RateLimited(t *testing.T) {
	router := newTestRouter(t, func(cfg *conf.Config, opts *Options) {
		cfg.RateLimit.Enabled = true
		opts.RateLimiter = denyAll{}
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/share/anything", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
