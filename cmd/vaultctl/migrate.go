package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/database"
	vaultdata "github.com/lk2023060901/file-vault-backend/internal/vault/data"
)

type migrationStatus struct {
	Version uint `json:"version" yaml:"version"`
	Dirty   bool `json:"dirty" yaml:"dirty"`
}

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(mg *database.Migrator) error {
				return mg.Up()
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return withMigrator(cmd, func(mg *database.Migrator) error {
				return mg.Down(steps)
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(mg *database.Migrator) error {
				v, dirty, err := mg.Version()
				if err != nil {
					return err
				}
				status := migrationStatus{Version: v, Dirty: dirty}
				return printResult(cmd.OutOrStdout(), outputFormat, status, []row{
					{"version", v},
					{"dirty", dirty},
				})
			})
		},
	})

	return migrateCmd
}

func withMigrator(cmd *cobra.Command, fn func(mg *database.Migrator) error) error {
	config, log, err := loadEnv()
	if err != nil {
		return err
	}
	defer log.Sync()

	mg, err := vaultdata.NewMigrator(&config.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := mg.Close(); err != nil {
			log.Warn("failed to close migrator", zap.Error(err))
		}
	}()

	return fn(mg)
}
