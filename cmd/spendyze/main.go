package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"spendyze/internal/cli"
	"spendyze/internal/config"
	"spendyze/internal/log"
)

var version = "dev"

// app is what every subcommand receives after the root pre-run.
type app struct {
	envFile string
	cfg     *config.Config
	logger  *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "spendyze",
		Short:         "Expense tracking API with budget alerts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newServeCmd(a),
		newWorkerCmd(a),
		newAlertsCmd(a),
		newOutboxCmd(a),
		newMigrateCmd(a),
	)
	return root
}

func (a *app) init() error {
	if err := cli.LoadEnvFile(a.envFile); err != nil {
		return err
	}
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cli.SetupLogger(cfg.LogLevel)
	return nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
