package main

import (
	"github.com/spf13/cobra"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/injector"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
)

type sweepOutput struct {
	Scanned    int   `json:"scanned" yaml:"scanned"`
	Abandoned  int64 `json:"abandoned" yaml:"abandoned"`
	Removed    int64 `json:"removed" yaml:"removed"`
	PurgedLogs int64 `json:"purged_logs" yaml:"purged_logs"`
	Reconciled int64 `json:"reconciled" yaml:"reconciled"`
	Errors     int64 `json:"errors" yaml:"errors"`
}

func newSweepCmd() *cobra.Command {
	var reconcile bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweeper cycle now",
		Long: `Abandon uploads older than sweeper.abandon_after, remove their partial
objects and purge expired access-log rows. The distributed lock is not taken,
so avoid running this while a server instance is mid-cycle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, log, err := loadEnv()
			if err != nil {
				return err
			}
			defer log.Sync()

			if reconcile {
				config.Sweeper.ReconcileQuota = true
			}

			ops, cleanup, err := injector.InitializeOps(config, log)
			if err != nil {
				return err
			}
			defer cleanup()

			report, runErr := ops.Sweeper.RunOnce(cmd.Context())
			if report == nil {
				report = &biz.SweepReport{}
			}
			out := sweepOutput(*report)
			if err := printResult(cmd.OutOrStdout(), outputFormat, out, []row{
				{"scanned", out.Scanned},
				{"abandoned", out.Abandoned},
				{"removed", out.Removed},
				{"purged_logs", out.PurgedLogs},
				{"reconciled", out.Reconciled},
				{"errors", out.Errors},
			}); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&reconcile, "reconcile", false, "also recompute every owner's storage usage")

	return cmd
}
