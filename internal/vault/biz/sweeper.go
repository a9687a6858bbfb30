package biz

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
)

// TaskRunner 并发执行一批任务并等待全部结束
type TaskRunner interface {
	Run(ctx context.Context, tasks []func(ctx context.Context) error) error
}

// SweepOptions 回收参数
type SweepOptions struct {
	AbandonAfter   time.Duration
	BatchSize      int
	ReconcileQuota bool
}

// SweepReport 单次回收统计
type SweepReport struct {
	Scanned    int
	Abandoned  int64
	Removed    int64
	PurgedLogs int64
	Reconciled int64
	Errors     int64
}

// Sweeper 回收超时未确认的上传并清理过期审计日志
type Sweeper struct {
	stores Stores
	runner TaskRunner
	opts   SweepOptions
	now    func() time.Time
	log    *logger.Logger
}

// NewSweeper 创建回收器
func NewSweeper(stores Stores, runner TaskRunner, opts SweepOptions, now func() time.Time, log *logger.Logger) *Sweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{
		stores: stores,
		runner: runner,
		opts:   opts,
		now:    now,
		log:    log,
	}
}

// RunOnce 执行一次回收：
// 1. uploading 超过 AbandonAfter 的文件条件迁移到 abandoned，再删除残留对象
// 2. 删除过期审计日志
// 3. 可选：按 completed 文件重算配额
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	defer func() { sweeperDuration.Observe(time.Since(start).Seconds()) }()

	now := s.now()
	report := &SweepReport{}
	log := s.log.WithContext(ctx)

	stale, err := s.stores.Files.ListStaleUploads(ctx, now.Add(-s.opts.AbandonAfter), s.opts.BatchSize)
	if err != nil {
		sweeperErrors.Inc()
		return report, storeErr("list stale uploads", err)
	}
	report.Scanned = len(stale)

	var abandoned, removed, failed atomic.Int64
	tasks := make([]func(ctx context.Context) error, 0, len(stale))
	for _, f := range stale {
		tasks = append(tasks, func(ctx context.Context) error {
			ok, err := s.stores.Files.MarkAbandoned(ctx, f.ID, f.OwnerID, now)
			if err != nil {
				failed.Add(1)
				return storeErr("mark abandoned", err)
			}
			if !ok {
				return nil
			}
			abandoned.Add(1)

			if err := s.stores.Objects.Delete(ctx, f.StorageKey); err != nil {
				failed.Add(1)
				log.Warn("failed to remove abandoned object",
					zap.String("file_id", f.ID),
					zap.String("storage_key", f.StorageKey),
					zap.Error(err),
				)
				return nil
			}
			removed.Add(1)
			return nil
		})
	}

	var errs []error
	if len(tasks) > 0 {
		if err := s.runner.Run(ctx, tasks); err != nil {
			errs = append(errs, err)
		}
	}
	report.Abandoned = abandoned.Load()
	report.Removed = removed.Load()
	sweeperAbandoned.Add(float64(report.Abandoned))

	purged, err := s.stores.AccessLogs.PurgeExpired(ctx, now)
	if err != nil {
		failed.Add(1)
		errs = append(errs, storeErr("purge access logs", err))
	}
	report.PurgedLogs = purged
	sweeperPurgedLogs.Add(float64(purged))

	if s.opts.ReconcileQuota {
		n, err := s.stores.Quotas.Reconcile(ctx, "")
		if err != nil {
			failed.Add(1)
			errs = append(errs, storeErr("reconcile quotas", err))
		}
		report.Reconciled = n
	}

	report.Errors = failed.Load()
	sweeperErrors.Add(float64(report.Errors))

	log.Info("sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int64("abandoned", report.Abandoned),
		zap.Int64("removed", report.Removed),
		zap.Int64("purged_logs", report.PurgedLogs),
		zap.Int64("reconciled", report.Reconciled),
		zap.Int64("errors", report.Errors),
	)
	return report, errors.Join(errs...)
}
