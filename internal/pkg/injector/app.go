package injector

import (
	"context"

	"github.com/lk2023060901/file-vault-backend/internal/conf"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/server"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
	"github.com/lk2023060901/file-vault-backend/internal/vault/job"
)

// App encapsulates all application dependencies
type App struct {
	Config      *conf.Config
	Logger      *logger.Logger
	HTTPServer  *server.HTTPServer
	SweepRunner *job.SweepRunner // nil when the sweeper is disabled
}

// StartBackground launches the periodic sweeper when enabled
func (a *App) StartBackground(ctx context.Context) error {
	if a.SweepRunner == nil {
		return nil
	}
	return a.SweepRunner.Start(ctx)
}

// StopBackground stops the periodic sweeper and waits for the running cycle
func (a *App) StopBackground() {
	if a.SweepRunner != nil {
		a.SweepRunner.Stop()
	}
}

// Ops bundles what the operator CLI needs without the HTTP surface
type Ops struct {
	Stores  biz.Stores
	Sweeper *biz.Sweeper
}

func newApp(
	config *conf.Config,
	log *logger.Logger,
	httpServer *server.HTTPServer,
	sweepRunner *job.SweepRunner,
) *App {
	return &App{
		Config:      config,
		Logger:      log,
		HTTPServer:  httpServer,
		SweepRunner: sweepRunner,
	}
}

func newOps(stores biz.Stores, sweeper *biz.Sweeper) *Ops {
	return &Ops{Stores: stores, Sweeper: sweeper}
}
