package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/file-vault-backend/internal/pkg/redis"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
)

// SweepLockKey 多实例部署时保证同一时刻只有一个实例执行回收
const SweepLockKey = "lock:vault:sweeper"

// Sweeper 单次回收逻辑，由 *biz.Sweeper 实现
type Sweeper interface {
	RunOnce(ctx context.Context) (*biz.SweepReport, error)
}

// Locker 分布式锁，由 *redis.Client 实现
type Locker interface {
	WithLock(ctx context.Context, key string, expiration time.Duration, fn func(ctx context.Context) error) error
}

// Config 定时回收配置
type Config struct {
	Interval time.Duration
	LockTTL  time.Duration
}

// SweepRunner 按固定间隔执行回收
type SweepRunner struct {
	sweeper Sweeper
	locker  Locker
	config  Config
	logger  *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSweepRunner 创建定时回收任务；locker 为 nil 时不加锁
func NewSweepRunner(sweeper Sweeper, locker Locker, config Config, log *logger.Logger) *SweepRunner {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Minute
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 5 * time.Minute
	}
	return &SweepRunner{
		sweeper: sweeper,
		locker:  locker,
		config:  config,
		logger:  log.Named("sweeper"),
	}
}

// Start 启动后台循环，启动后立即执行一次
func (r *SweepRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("sweeper already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	r.logger.Info("starting sweeper",
		zap.Duration("interval", r.config.Interval),
		zap.Duration("lock_ttl", r.config.LockTTL))

	go r.loop(loopCtx, r.done)
	return nil
}

// Stop 停止后台循环并等待当前一轮结束
func (r *SweepRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.cancel()
	<-r.done
	r.running = false
	r.logger.Info("sweeper stopped")
}

func (r *SweepRunner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("sweep cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce 在锁保护下执行一次回收；锁被其他实例持有时返回 nil 报告
func (r *SweepRunner) RunOnce(ctx context.Context) (*biz.SweepReport, error) {
	if r.locker == nil {
		return r.sweeper.RunOnce(ctx)
	}

	var report *biz.SweepReport
	err := r.locker.WithLock(ctx, SweepLockKey, r.config.LockTTL, func(ctx context.Context) error {
		var err error
		report, err = r.sweeper.RunOnce(ctx)
		return err
	})
	if errors.Is(err, pkgredis.ErrLockNotAcquired) {
		r.logger.Debug("sweep skipped, lock held by another instance")
		return nil, nil
	}
	return report, err
}
