//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"

	"github.com/lk2023060901/file-vault-backend/internal/conf"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/server"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
	"github.com/lk2023060901/file-vault-backend/internal/vault/service"
)

// Data layer providers
var dataProviderSet = wire.NewSet(
	provideData,
	provideStores,
)

// Use case providers
var useCaseProviderSet = wire.NewSet(
	VaultOptions,
	biz.NewVault,
	provideWorkerPool,
	provideSweeper,
)

// Server providers
var serverProviderSet = wire.NewSet(
	service.NewVaultService,
	provideJWTManager,
	provideServerOptions,
	server.NewHTTPServer,
	provideSweepRunner,
)

// InitializeApp initializes the control plane with Wire
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(dataProviderSet, useCaseProviderSet, serverProviderSet, newApp)
	return nil, nil, nil
}

// InitializeOps initializes the stores and sweeper used by vaultctl
func InitializeOps(config *conf.Config, log *logger.Logger) (*Ops, func(), error) {
	wire.Build(dataProviderSet, provideWorkerPool, provideSweeper, newOps)
	return nil, nil, nil
}
