package injector

import (
	"github.com/lk2023060901/file-vault-backend/internal/auth"
	"github.com/lk2023060901/file-vault-backend/internal/conf"
	"github.com/lk2023060901/file-vault-backend/internal/data"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/file-vault-backend/internal/server"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
	vaultdata "github.com/lk2023060901/file-vault-backend/internal/vault/data"
	"github.com/lk2023060901/file-vault-backend/internal/vault/job"
)

// Data layer helpers

func provideData(config *conf.Config, log *logger.Logger) (*data.Data, func(), error) {
	return data.NewData(config, log)
}

func provideStores(d *data.Data, config *conf.Config) biz.Stores {
	return vaultdata.NewStores(d.DB, d.MinIO, config.Vault.DefaultQuota)
}

// Use case providers

// VaultOptions maps the vault config section onto coordinator options
func VaultOptions(config *conf.Config) biz.Options {
	v := config.Vault
	opts := biz.DefaultOptions()
	opts.MaxFileSize = v.MaxFileSize
	opts.UploadURLTTL = v.UploadURLTTL
	opts.DownloadURLTTL = v.DownloadURLTTL
	opts.DefaultShareTTL = v.DefaultShareTTL
	opts.MaxShareTTL = v.MaxShareTTL
	opts.AccessLogRetention = v.AccessLogRetention
	opts.PublicBaseURL = v.PublicBaseURL
	opts.ListDefaultLimit = v.ListDefaultLimit
	opts.ListMaxLimit = v.ListMaxLimit
	opts.ShareMissCacheSize = v.ShareMissCacheSize
	opts.ShareMissCacheTTL = v.ShareMissCacheTTL
	return opts
}

// SweepOptions maps the sweeper config section onto sweep options
func SweepOptions(config *conf.Config) biz.SweepOptions {
	return biz.SweepOptions{
		AbandonAfter:   config.Sweeper.AbandonAfter,
		BatchSize:      config.Sweeper.BatchSize,
		ReconcileQuota: config.Sweeper.ReconcileQuota,
	}
}

func provideWorkerPool(config *conf.Config, log *logger.Logger) (*workerpool.Pool, func(), error) {
	workers := config.Sweeper.Workers
	if workers <= 0 {
		workers = workerpool.DefaultConfig().Workers
	}
	pool, err := workerpool.New(&workerpool.Config{Workers: workers}, log.Logger)
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Shutdown, nil
}

func provideSweeper(stores biz.Stores, pool *workerpool.Pool, config *conf.Config, log *logger.Logger) *biz.Sweeper {
	return biz.NewSweeper(stores, pool, SweepOptions(config), nil, log.Named("sweeper"))
}

func provideSweepRunner(sweeper *biz.Sweeper, d *data.Data, config *conf.Config, log *logger.Logger) *job.SweepRunner {
	if !config.Sweeper.Enabled {
		return nil
	}
	return job.NewSweepRunner(sweeper, d.Redis, job.Config{
		Interval: config.Sweeper.Interval,
		LockTTL:  config.Sweeper.LockTTL,
	}, log)
}

// Server providers

func provideJWTManager(config *conf.Config) *auth.JWTManager {
	return auth.NewJWTManager(config.Auth.JWTSecret, config.Auth.JWTIssuer)
}

func provideServerOptions(d *data.Data, jwt *auth.JWTManager) server.Options {
	return server.Options{
		JWT:         jwt,
		RateLimiter: d.Redis,
		HealthChecks: map[string]server.HealthCheck{
			"database": d.DB.HealthCheck,
			"redis":    d.Redis.Ping,
			"minio":    d.MinIO.Ping,
		},
	}
}
