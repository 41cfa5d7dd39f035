package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"spendyze/internal/ledger"
)

func newOutboxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect the alert delivery outbox",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print outbox counts by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(store ledger.Store) error {
				s, err := store.OutboxStats(cmd.Context())
				if err != nil {
					return fmt.Errorf("outbox stats: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}

	retry := &cobra.Command{
		Use:   "retry-failed",
		Short: "Move failed deliveries back to pending",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(store ledger.Store) error {
				n, err := store.RetryFailedAlerts(cmd.Context())
				if err != nil {
					return fmt.Errorf("retry failed alerts: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d alerts queued for retry\n", n)
				return err
			})
		},
	}

	cmd.AddCommand(stats, retry)
	return cmd
}
