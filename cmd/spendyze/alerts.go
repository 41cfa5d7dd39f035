package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"spendyze/internal/ledger"
	"spendyze/internal/lock"
	"spendyze/internal/services"
)

func newAlertsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and manage budget alerts",
	}
	cmd.AddCommand(newAlertsCheckCmd(a), newAlertsResetCmd(a))
	return cmd
}

func newAlertsCheckCmd(a *app) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate one user's budget and queue an alert if a threshold was crossed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(store ledger.Store) error {
				return checkAlerts(cmd.Context(), cmd.OutOrStdout(), services.NewAlertService(store, lock.NewLocal(), a.logger), user)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id to check (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func checkAlerts(ctx context.Context, out io.Writer, svc services.AlertChecker, user string) error {
	if strings.TrimSpace(user) == "" {
		return errors.New("--user must not be empty")
	}
	res, err := svc.CheckBudgetAlerts(ctx, user)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

func newAlertsResetCmd(a *app) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Start a new budget cycle for a user so thresholds can fire again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(user) == "" {
				return errors.New("--user must not be empty")
			}
			return a.withStore(cmd.Context(), func(store ledger.Store) error {
				if err := store.ResetNotifiedThresholds(cmd.Context(), user); err != nil {
					return fmt.Errorf("reset thresholds for %s: %w", user, err)
				}
				a.logger.Info("Notified thresholds reset", "user_id", user)
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Thresholds reset for %s\n", user)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id to reset (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
