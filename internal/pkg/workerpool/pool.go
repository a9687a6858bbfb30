package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Config Worker Pool 配置
type Config struct {
	Workers     int  `mapstructure:"workers"`      // worker 数量
	NonBlocking bool `mapstructure:"non_blocking"` // 池满时立即返回错误而不是阻塞
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers: 8,
	}
}

// Statistics 统计信息
type Statistics struct {
	Submitted int64 // 已提交
	Completed int64 // 已完成
	Panicked  int64 // panic 次数
}

// Pool 基于 ants 的 Worker Pool
type Pool struct {
	pool   *ants.Pool
	logger *zap.Logger

	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
}

// New 创建 Worker Pool
func New(config *Config, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("workers must be > 0, got %d", config.Workers)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{logger: logger}

	antsPool, err := ants.NewPool(config.Workers,
		ants.WithNonblocking(config.NonBlocking),
		ants.WithPanicHandler(func(err interface{}) {
			p.panicked.Add(1)
			logger.Error("worker panic", zap.Any("error", err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = antsPool

	return p, nil
}

// Submit 提交任务
func (p *Pool) Submit(task func()) error {
	err := p.pool.Submit(func() {
		task()
		p.completed.Add(1)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	if err != nil {
		return err
	}

	p.submitted.Add(1)
	return nil
}

// Run 并发执行一批任务并等待全部结束，返回所有任务错误的合并结果。
// ctx 取消后尚未提交的任务不再执行。
func (p *Pool) Run(ctx context.Context, tasks []func(ctx context.Context) error) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			record(err)
			break
		}

		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			defer func() {
				// 单个任务 panic 不影响批次中其他任务
				if r := recover(); r != nil {
					p.panicked.Add(1)
					p.logger.Error("task panic", zap.Any("error", r))
					record(fmt.Errorf("task panic: %v", r))
				}
			}()
			if err := task(ctx); err != nil {
				record(err)
			}
		})
		if err != nil {
			wg.Done()
			record(err)
		}
	}

	wg.Wait()
	return errors.Join(errs...)
}

// Stats 获取统计信息
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// Shutdown 释放 worker 并输出累计统计
func (p *Pool) Shutdown() {
	p.pool.Release()

	stats := p.Stats()
	p.logger.Info("worker pool released",
		zap.Int64("submitted", stats.Submitted),
		zap.Int64("completed", stats.Completed),
		zap.Int64("panicked", stats.Panicked),
	)
}
