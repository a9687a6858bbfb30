package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/auth"
	"github.com/lk2023060901/file-vault-backend/internal/auth/middleware"
	"github.com/lk2023060901/file-vault-backend/internal/conf"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/vault/service"
)

// HealthCheck 依赖探活函数
type HealthCheck func(ctx context.Context) error

// Options HTTP 服务依赖
type Options struct {
	JWT          *auth.JWTManager
	RateLimiter  middleware.ScriptEvaluator // 为 nil 时公开分享接口不限流
	HealthChecks map[string]HealthCheck
}

type HTTPServer struct {
	server *http.Server
	logger *logger.Logger
}

func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	vaultService *service.VaultService,
	opts Options,
) *HTTPServer {
	handler := NewRouter(config, log, vaultService, opts)

	return &HTTPServer{
		server: &http.Server{
			Addr:         config.Server.Addr(),
			Handler:      handler,
			ReadTimeout:  config.Server.ReadTimeout,
			WriteTimeout: config.Server.WriteTimeout,
		},
		logger: log,
	}
}

// NewRouter 组装路由与中间件链
func NewRouter(
	config *conf.Config,
	log *logger.Logger,
	vaultService *service.VaultService,
	opts Options,
) http.Handler {
	if config.Server.Mode != "" {
		gin.SetMode(config.Server.Mode)
	}

	router := gin.New()
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLogger(log, logger.MiddlewareOptions{
		SkipPaths: []string{"/health", "/metrics"},
	}))
	router.Use(middleware.CORS(config.Server.AllowedOrigins))

	// Health check
	router.GET("/health", healthHandler(opts.HealthChecks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1", middleware.JWTAuth(opts.JWT, log))
	vaultService.RegisterRoutes(api)

	// 公开分享访问
	share := router.Group("/share")
	if opts.RateLimiter != nil && config.RateLimit.Enabled {
		share.Use(middleware.RateLimiter(opts.RateLimiter, middleware.RateLimiterConfig{
			MaxRequests:   config.RateLimit.MaxRequests,
			WindowSeconds: config.RateLimit.WindowSeconds,
			Prefix:        "share",
		}))
	}
	vaultService.RegisterPublicRoutes(share)

	if !config.Server.EnableGzip {
		return router
	}
	return gzhttp.GzipHandler(router)
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				deps[name] = err.Error()
				continue
			}
			deps[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":       state,
			"time":         time.Now().Format(time.RFC3339),
			"dependencies": deps,
		})
	}
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
