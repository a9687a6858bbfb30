package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/file-vault-backend/internal/conf"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
)

var (
	cfgFile      string
	outputFormat string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vaultctl",
		Short: "Operator tooling for the file vault control plane",
		Long: `vaultctl runs maintenance tasks against the vault database and object store.

Examples:
  # Apply pending schema migrations
  vaultctl migrate up -c config.yaml

  # Reclaim abandoned uploads and purge expired access logs once
  vaultctl sweep --reconcile

  # Recompute one owner's usage from completed files
  vaultctl quota reconcile --owner 42 -o yaml

  # Assign a 50 GiB quota
  vaultctl quota set --owner 42 --bytes 53687091200`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newQuotaCmd())
	rootCmd.AddCommand(newTokenCmd())

	return rootCmd
}

// loadEnv reads the configuration and builds a console logger for the CLI
func loadEnv() (*conf.Config, *logger.Logger, error) {
	config, err := conf.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	logCfg := config.Log
	logCfg.Output = "console"
	logCfg.Format = "console"
	log, err := logger.New(&logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return config, log, nil
}
