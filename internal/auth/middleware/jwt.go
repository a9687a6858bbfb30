package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/auth"
	apperrors "github.com/lk2023060901/file-vault-backend/internal/pkg/errors"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/response"
)

const ownerIDKey = "owner_id"

// JWTAuth JWT 认证中间件，成功后将 ownerId 注入 gin 上下文与请求 ctx
func JWTAuth(jwtManager *auth.JWTManager, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.ErrorWithCode(c, apperrors.ErrUnauthorized, "missing authorization")
			return
		}

		token, err := auth.ExtractTokenFromHeader(authHeader)
		if err != nil {
			response.ErrorWithCode(c, apperrors.ErrUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := jwtManager.VerifyAccessToken(token)
		if err != nil {
			log.WithContext(c.Request.Context()).Warn("invalid access token",
				zap.Error(err),
				zap.String("ip", c.ClientIP()))
			response.ErrorWithCode(c, apperrors.ErrUnauthorized, "invalid or expired token")
			return
		}

		ownerID := claims.OwnerID()
		c.Set(ownerIDKey, ownerID)
		c.Request = c.Request.WithContext(logger.WithOwnerID(c.Request.Context(), ownerID))

		c.Next()
	}
}

// GetOwnerID 从上下文获取调用方 ownerId
func GetOwnerID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ownerIDKey)
	if !exists {
		return "", false
	}
	ownerID, ok := v.(string)
	return ownerID, ok && ownerID != ""
}
