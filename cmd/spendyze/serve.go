package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apphttp "spendyze/internal/http"
	"spendyze/internal/cli"
	"spendyze/internal/middleware/ratelimit"
	"spendyze/internal/services"
	"spendyze/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var apiOnly bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API.

Without AMQP_URL the API also drains the alert outbox and runs budget checks
inline after every write. With a broker, checks are published and the API
still drains the outbox unless --api-only is set, in which case a separate
worker process is expected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), apiOnly)
		},
	}
	cmd.Flags().BoolVar(&apiOnly, "api-only", false, "do not run the outbox processor or consumer in this process")
	return cmd
}

func (a *app) serve(parent context.Context, apiOnly bool) error {
	ctx, cancel := cli.SignalContext(parent, a.logger)
	defer cancel()

	c, err := a.build(ctx, true)
	if err != nil {
		return err
	}
	defer c.Close()

	var publisher services.AlertCheckPublisher
	var checker services.AlertChecker
	if c.broker != nil {
		publisher = c.broker
	} else {
		checker = c.alerts
	}
	transactions := services.NewTransactionService(c.store, publisher, checker, a.logger).WithMetrics(c.metrics)

	srv := apphttp.NewServer(":"+a.cfg.Port, apphttp.Deps{
		Transactions: transactions,
		Alerts:       c.alerts,
		AI:           c.ai,
		Metrics:      c.metrics,
		Logger:       a.logger,
		Ready:        c.readiness(),
	}, apphttp.Options{
		RateLimit: ratelimit.Config{
			RequestsPerSecond: a.cfg.RateLimitRPS,
			Burst:             a.cfg.RateLimitBurst,
		},
	})

	g, gctx := errgroup.WithContext(ctx)

	if !apiOnly {
		if err := c.processor.Start(gctx); err != nil {
			return err
		}
		if c.broker != nil {
			w := worker.NewAlertWorker(c.alerts, c.store, a.cfg.SweepConcurrency, a.logger)
			g.Go(func() error { return consume(gctx, c, w) })
		}
	}

	g.Go(func() error {
		a.logger.Info("Starting spendyze server",
			"port", a.cfg.Port,
			"backend", a.cfg.DataBackend,
			"delivery", a.cfg.AlertDelivery,
			"broker", c.broker != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		cli.Shutdown(a.logger, shutdownTimeout, srv.Shutdown, c.processor.Stop)
		return nil
	})

	return g.Wait()
}
