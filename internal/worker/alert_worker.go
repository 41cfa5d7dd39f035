package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"spendyze/internal/amqp"
	"spendyze/internal/log"
	"spendyze/internal/services"
)

// UserLister enumerates known users.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// AlertWorker runs budget checks requested over the broker.
type AlertWorker struct {
	checker     services.AlertChecker
	users       UserLister
	concurrency int
	logger      *log.Logger
}

func NewAlertWorker(checker services.AlertChecker, users UserLister, concurrency int, logger *log.Logger) *AlertWorker {
	if concurrency < 1 {
		concurrency = 4
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &AlertWorker{
		checker:     checker,
		users:       users,
		concurrency: concurrency,
		logger:      logger.WithComponent(log.ComponentWorker),
	}
}

// HandleAlertCheck processes one message. A returned error requeues it.
func (w *AlertWorker) HandleAlertCheck(ctx context.Context, msg *amqp.AlertCheckMessage) error {
	w.logger.DebugContext(ctx, "Processing alert check",
		log.FieldUserID, msg.UserID,
		"reason", msg.Reason)

	res, err := w.checker.CheckBudgetAlerts(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("check budget alerts for %s: %w", msg.UserID, err)
	}

	w.logger.InfoContext(ctx, "Alert check done",
		log.FieldUserID, msg.UserID,
		"decision", string(res.Kind),
		log.FieldThreshold, res.Threshold)
	return nil
}

// StartupSweep checks every known user once, catching up on messages lost
// while the worker was down. Individual failures are logged and skipped.
func (w *AlertWorker) StartupSweep(ctx context.Context) (checked int, err error) {
	ids, err := w.users.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	results := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if _, err := w.checker.CheckBudgetAlerts(gctx, id); err != nil {
				w.logger.WarnContext(gctx, "Startup sweep check failed",
					log.FieldUserID, id, log.FieldError, err)
				return nil
			}
			results[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	for _, ok := range results {
		if ok {
			checked++
		}
	}

	w.logger.InfoContext(ctx, "Startup sweep complete", "users", len(ids), "checked", checked)
	return checked, ctx.Err()
}
