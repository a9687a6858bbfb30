package data

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/conf"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/database"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/minio"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/redis"
	vaultdata "github.com/lk2023060901/file-vault-backend/internal/vault/data"
)

// Data 共享的基础设施客户端
type Data struct {
	DB     *database.DB
	Redis  *redis.Client
	MinIO  *minio.Client
	Logger *logger.Logger
}

// NewData 初始化 Postgres、Redis 与 MinIO；返回的 cleanup 释放全部连接
func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	var closers []func()
	cleanup := func() {
		log.Info("cleaning up data resources")
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Data, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// PostgreSQL
	if config.Database.AutoMigrate {
		if err := vaultdata.Migrate(&config.Database, log); err != nil {
			return fail(fmt.Errorf("failed to migrate database: %w", err))
		}
	}

	db, err := database.New(&config.Database, log)
	if err != nil {
		return fail(fmt.Errorf("failed to init database: %w", err))
	}
	closers = append(closers, func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	})

	// Redis
	redisClient, err := redis.New(&config.Redis, log)
	if err != nil {
		return fail(fmt.Errorf("failed to init redis: %w", err))
	}
	closers = append(closers, func() {
		if err := redisClient.Close(); err != nil {
			log.Warn("failed to close redis", zap.Error(err))
		}
	})

	// MinIO
	minioClient, err := minio.NewClient(&config.MinIO, log.Logger)
	if err != nil {
		return fail(fmt.Errorf("failed to init minio: %w", err))
	}
	closers = append(closers, func() {
		if err := minioClient.Close(); err != nil {
			log.Warn("failed to close minio", zap.Error(err))
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := minioClient.EnsureBucket(ctx); err != nil {
		return fail(fmt.Errorf("failed to bootstrap bucket: %w", err))
	}

	return &Data{
		DB:     db,
		Redis:  redisClient,
		MinIO:  minioClient,
		Logger: log,
	}, cleanup, nil
}
