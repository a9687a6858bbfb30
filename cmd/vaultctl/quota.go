package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/injector"
	"github.com/lk2023060901/file-vault-backend/internal/vault/biz"
)

type quotaOutput struct {
	OwnerID      string  `json:"owner_id" yaml:"owner_id"`
	StorageUsed  int64   `json:"storage_used" yaml:"storage_used"`
	StorageQuota int64   `json:"storage_quota" yaml:"storage_quota"`
	Available    int64   `json:"available" yaml:"available"`
	UsagePercent float64 `json:"usage_percent" yaml:"usage_percent"`
}

func newQuotaCmd() *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and maintain owner quotas",
	}

	var owner string
	var bytes int64

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute storage usage from completed files",
		Long: `Sets storage_used to the sum of completed file sizes.
Without --owner every quota record is reconciled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOps(func(ops *injector.Ops) error {
				n, err := ops.Stores.Quotas.Reconcile(cmd.Context(), owner)
				if err != nil {
					return err
				}
				if owner == "" {
					return printResult(cmd.OutOrStdout(), outputFormat,
						map[string]int64{"reconciled": n},
						[]row{{"reconciled", n}})
				}
				q, err := ops.Stores.Quotas.Get(cmd.Context(), owner)
				if err != nil {
					return err
				}
				return printQuota(cmd, q)
			})
		},
	}
	reconcileCmd.Flags().StringVar(&owner, "owner", "", "owner id (default: all owners)")
	quotaCmd.AddCommand(reconcileCmd)

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Assign an owner's storage quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if owner == "" {
				return errors.New("--owner is required")
			}
			if bytes < 0 {
				return fmt.Errorf("--bytes must be >= 0, got %d", bytes)
			}
			return withOps(func(ops *injector.Ops) error {
				q, err := ops.Stores.Quotas.SetQuota(cmd.Context(), owner, bytes)
				if err != nil {
					return err
				}
				return printQuota(cmd, q)
			})
		},
	}
	setCmd.Flags().StringVar(&owner, "owner", "", "owner id")
	setCmd.Flags().Int64Var(&bytes, "bytes", 0, "quota in bytes")
	_ = setCmd.MarkFlagRequired("owner")
	_ = setCmd.MarkFlagRequired("bytes")
	quotaCmd.AddCommand(setCmd)

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show an owner's quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if owner == "" {
				return errors.New("--owner is required")
			}
			return withOps(func(ops *injector.Ops) error {
				q, err := ops.Stores.Quotas.Get(cmd.Context(), owner)
				if err != nil {
					return err
				}
				return printQuota(cmd, q)
			})
		},
	}
	getCmd.Flags().StringVar(&owner, "owner", "", "owner id")
	quotaCmd.AddCommand(getCmd)

	return quotaCmd
}

func withOps(fn func(ops *injector.Ops) error) error {
	config, log, err := loadEnv()
	if err != nil {
		return err
	}
	defer log.Sync()

	ops, cleanup, err := injector.InitializeOps(config, log)
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(ops)
}

func toQuotaOutput(q *biz.Quota) quotaOutput {
	return quotaOutput{
		OwnerID:      q.OwnerID,
		StorageUsed:  q.StorageUsed,
		StorageQuota: q.StorageQuota,
		Available:    q.Available(),
		UsagePercent: q.UsagePercent(),
	}
}

func printQuota(cmd *cobra.Command, q *biz.Quota) error {
	out := toQuotaOutput(q)
	return printResult(cmd.OutOrStdout(), outputFormat, out, []row{
		{"owner", out.OwnerID},
		{"used", out.StorageUsed},
		{"quota", out.StorageQuota},
		{"available", out.Available},
		{"usage", fmt.Sprintf("%.2f%%", out.UsagePercent)},
	})
}
