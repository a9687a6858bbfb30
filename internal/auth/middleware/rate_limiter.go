package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/lk2023060901/file-vault-backend/internal/pkg/errors"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/response"
)

// ScriptEvaluator 执行 Lua 脚本的最小接口，*redis.Client 满足该接口
type ScriptEvaluator interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	// 时间窗口内允许的最大请求数
	MaxRequests int
	// 时间窗口（秒）
	WindowSeconds int
	// key 前缀，用于区分不同接口的限流桶
	Prefix string
}

// 滑动窗口：成员为唯一请求 id，分值为毫秒时间戳
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

local current = redis.call('ZCARD', key)
if current < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	return {1, limit - current - 1, now + window}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')[2]
return {0, 0, tonumber(oldest) + window}
`

// RateLimiter 基于 Redis 的按 IP 滑动窗口限流中间件，日志使用请求上下文中的 logger
func RateLimiter(evaluator ScriptEvaluator, cfg RateLimiterConfig) gin.HandlerFunc {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 30
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rate_limit"
	}

	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:ip:%s", cfg.Prefix, c.ClientIP())

		ctx := c.Request.Context()
		allowed, remaining, resetAt, err := checkRateLimit(ctx, evaluator, key, cfg)
		if err != nil {
			logger.FromContext(ctx).Error("rate limiter error", zap.Error(err), zap.String("key", key))
			// 限流器故障时，降级允许请求通过
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt/1000, 10))

		if !allowed {
			retryAfter := (resetAt - time.Now().UnixMilli() + 999) / 1000
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.ErrorWithCode(c, apperrors.ErrTooManyRequests,
				fmt.Sprintf("too many requests, retry in %d seconds", retryAfter))
			return
		}

		c.Next()
	}
}

// checkRateLimit 使用 Redis 滑动窗口算法检查限流，resetAt 为毫秒时间戳
func checkRateLimit(ctx context.Context, evaluator ScriptEvaluator, key string, cfg RateLimiterConfig) (allowed bool, remaining int, resetAt int64, err error) {
	now := time.Now().UnixMilli()
	window := int64(cfg.WindowSeconds) * 1000

	result, err := evaluator.Eval(ctx, slidingWindowScript, []string{key}, now, window, cfg.MaxRequests, uuid.NewString())
	if err != nil {
		return false, 0, 0, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, 0, fmt.Errorf("invalid rate limit result: %v", result)
	}

	allowedInt, _ := values[0].(int64)
	remainingInt, _ := values[1].(int64)
	resetInt, _ := values[2].(int64)

	return allowedInt == 1, int(remainingInt), resetInt, nil
}
