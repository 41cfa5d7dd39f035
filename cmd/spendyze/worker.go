package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"spendyze/internal/amqp"
	"spendyze/internal/cli"
	"spendyze/internal/log"
	"spendyze/internal/worker"
)

func newWorkerCmd(a *app) *cobra.Command {
	var (
		metricsAddr string
		skipSweep   bool
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume alert checks and deliver queued alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runWorker(cmd.Context(), metricsAddr, skipSweep)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9091", "address for /metrics and /healthz; empty disables it")
	cmd.Flags().BoolVar(&skipSweep, "skip-sweep", false, "do not check every user on startup")
	return cmd
}

func (a *app) runWorker(parent context.Context, metricsAddr string, skipSweep bool) error {
	ctx, cancel := cli.SignalContext(parent, a.logger)
	defer cancel()

	a.logger.Info("Starting spendyze worker")

	c, err := a.build(ctx, true)
	if err != nil {
		return err
	}
	defer c.Close()

	w := worker.NewAlertWorker(c.alerts, c.store, a.cfg.SweepConcurrency, a.logger)
	g, gctx := errgroup.WithContext(ctx)

	if err := c.processor.Start(gctx); err != nil {
		return err
	}

	if !skipSweep {
		// Recovers checks whose messages were lost while no worker ran.
		g.Go(func() error {
			n, err := w.StartupSweep(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("Startup sweep failed", log.FieldError, err)
				return nil
			}
			a.logger.Info("Startup sweep finished", "users", n)
			return nil
		})
	}

	if c.broker != nil {
		g.Go(func() error { return consume(gctx, c, w) })
	} else {
		a.logger.Info("AMQP_URL not set, only draining the outbox")
	}

	var metricsSrv *http.Server
	if metricsAddr != "" {
		r := mux.NewRouter()
		r.Handle("/metrics", c.metrics.Handler()).Methods(http.MethodGet)
		r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}).Methods(http.MethodGet)
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: r}
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		steps := []func(context.Context) error{c.processor.Stop}
		if metricsSrv != nil {
			steps = append(steps, metricsSrv.Shutdown)
		}
		cli.Shutdown(a.logger, shutdownTimeout, steps...)
		return nil
	})

	return g.Wait()
}

// consume feeds broker messages to w until ctx ends. Cancellation is a
// clean exit.
func consume(ctx context.Context, c *components, w *worker.AlertWorker) error {
	err := c.broker.ConsumeAlertChecks(ctx, func(ctx context.Context, msg *amqp.AlertCheckMessage) error {
		return w.HandleAlertCheck(ctx, msg)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
