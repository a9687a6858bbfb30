package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 只有当锁的值等于 token 时才删除
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Lock 获取分布式锁，返回持有者 token
func (c *Client) Lock(ctx context.Context, key string, expiration time.Duration) (string, error) {
	token := uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, key, token, expiration).Result()
	if err != nil {
		c.logger.Error("redis lock failed", zap.String("key", key), zap.Error(err))
		return "", err
	}

	if !ok {
		return "", ErrLockNotAcquired
	}

	c.logger.Debug("redis lock acquired",
		zap.String("key", key),
		zap.Duration("expiration", expiration),
	)

	return token, nil
}

// Unlock 释放分布式锁（使用 Lua 脚本保证原子性）
func (c *Client) Unlock(ctx context.Context, key, token string) error {
	result, err := c.Eval(ctx, unlockScript, []string{key}, token)
	if err != nil {
		return err
	}

	if n, ok := result.(int64); !ok || n == 0 {
		return ErrLockNotHeld
	}

	c.logger.Debug("redis lock released", zap.String("key", key))
	return nil
}

// WithLock 在锁保护下执行函数；锁被他人持有时返回 ErrLockNotAcquired
func (c *Client) WithLock(ctx context.Context, key string, expiration time.Duration, fn func(ctx context.Context) error) error {
	token, err := c.Lock(ctx, key, expiration)
	if err != nil {
		return err
	}

	defer func() {
		// 使用独立 ctx，避免调用方取消导致锁无法释放
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if err := c.Unlock(unlockCtx, key, token); err != nil {
			c.logger.Warn("failed to unlock", zap.String("key", key), zap.Error(err))
		}
	}()

	return fn(ctx)
}
