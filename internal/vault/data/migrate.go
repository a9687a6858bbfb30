package data

import (
	"embed"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/database"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewMigrator 基于内嵌 SQL 创建迁移器
func NewMigrator(cfg *database.Config, log *logger.Logger) (*database.Migrator, error) {
	return database.NewMigrator(migrationsFS, "migrations", cfg, log)
}

// Migrate 执行全部未应用的迁移
func Migrate(cfg *database.Config, log *logger.Logger) error {
	return database.Migrate(migrationsFS, "migrations", cfg, log)
}
