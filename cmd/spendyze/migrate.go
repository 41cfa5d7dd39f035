package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"spendyze/internal/storage"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.DataBackend != "sqlite" {
				return fmt.Errorf("migrate needs DATA_BACKEND=sqlite, got %q", a.cfg.DataBackend)
			}
			if err := storage.RunMigrations(a.cfg.SQLiteDBPath); err != nil {
				return err
			}
			a.logger.Info("Migrations applied", "db_path", a.cfg.SQLiteDBPath)
			return nil
		},
	}
}
