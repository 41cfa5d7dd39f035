package services

import (
	"context"
	"errors"
	"fmt"

	"spendyze/internal/alert"
	"spendyze/internal/ledger"
	"spendyze/internal/lock"
	"spendyze/internal/log"
	"spendyze/internal/metrics"
)

// Messages returned to API callers.
const (
	MsgNoIncome    = "No income to check against."
	MsgNoNewAlerts = "No new alerts to send."
)

// AlertStore is the slice of storage the alert check needs.
type AlertStore interface {
	ledger.TransactionSource
	GetNotifiedThresholds(ctx context.Context, userID string) ([]int, error)
	ledger.AlertRecorder
}

// Deliverer sends a freshly recorded outbox entry inline.
type Deliverer interface {
	Deliver(ctx context.Context, entry ledger.OutboxEntry) error
}

// AlertResult is the outcome of one budget check.
type AlertResult struct {
	Kind      alert.Kind   `json:"kind"`
	Threshold int          `json:"threshold,omitempty"`
	Totals    alert.Totals `json:"-"`
	Delivered bool         `json:"delivered"`
	Message   string       `json:"message"`
}

// AlertService reads a user's ledger, evaluates it and records at most one
// new threshold per call. Checks for the same user are serialized by locker.
type AlertService struct {
	store     AlertStore
	locker    lock.Locker
	deliverer Deliverer
	metrics   *metrics.Registry
	logger    *log.Logger
}

func NewAlertService(store AlertStore, locker lock.Locker, logger *log.Logger) *AlertService {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &AlertService{
		store:  store,
		locker: locker,
		logger: logger.WithComponent(log.ComponentAlert),
	}
}

// WithDeliverer switches the service to synchronous delivery.
func (s *AlertService) WithDeliverer(d Deliverer) *AlertService {
	s.deliverer = d
	return s
}

func (s *AlertService) WithMetrics(m *metrics.Registry) *AlertService {
	s.metrics = m
	return s
}

// CheckBudgetAlerts evaluates the user's budget. Zero income is a normal
// NoAlert result. Errors are *alert.Error and safe to retry.
func (s *AlertService) CheckBudgetAlerts(ctx context.Context, userID string) (AlertResult, error) {
	res, err := s.check(ctx, userID)
	if err != nil {
		if kind, ok := alert.KindOf(err); ok {
			s.metrics.ObserveAlertError(string(kind))
		}
		s.logger.ErrorContext(ctx, "Budget alert check failed",
			log.FieldUserID, userID,
			log.FieldError, err)
	}
	return res, err
}

func (s *AlertService) check(ctx context.Context, userID string) (AlertResult, error) {
	unlock, err := s.locker.Lock(ctx, "alert:"+userID)
	if err != nil {
		return AlertResult{}, alert.Wrap(alert.ErrLock, "acquire user lock", err)
	}
	defer unlock()

	txs, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return AlertResult{}, alert.Wrap(alert.ErrStoreRead, "list transactions", err)
	}
	notified, err := s.store.GetNotifiedThresholds(ctx, userID)
	if err != nil {
		return AlertResult{}, alert.Wrap(alert.ErrStoreRead, "read notified thresholds", err)
	}

	d := alert.Evaluate(txs, alert.NewNotifiedSet(notified...))
	log.LogAlertDecision(ctx, s.logger, userID, string(d.Kind),
		d.Totals.Income.Cents, d.Totals.Expenses.Cents, int(d.Threshold))

	res := AlertResult{Kind: d.Kind, Threshold: int(d.Threshold), Totals: d.Totals}
	if d.Kind == alert.NoAlert {
		s.metrics.ObserveDecision(string(d.Kind), 0)
		res.Message = MsgNoNewAlerts
		if d.Reason == alert.ReasonNoIncome {
			res.Message = MsgNoIncome
		}
		return res, nil
	}

	entry, err := s.store.RecordAlert(ctx, ledger.AlertRecord{
		UserID:    userID,
		Threshold: int(d.Threshold),
		Income:    d.Totals.Income,
		Expenses:  d.Totals.Expenses,
	})
	if errors.Is(err, ledger.ErrAlreadyNotified) {
		// Another writer recorded it between our read and write.
		s.metrics.ObserveDecision(string(alert.NoAlert), 0)
		return AlertResult{Kind: alert.NoAlert, Totals: d.Totals, Message: MsgNoNewAlerts}, nil
	}
	if err != nil {
		return AlertResult{}, alert.Wrap(alert.ErrStoreWrite, "record alert", err)
	}
	s.metrics.ObserveDecision(string(d.Kind), int(d.Threshold))

	res.Message = fmt.Sprintf("Alert queued for %d%% threshold.", d.Threshold)
	if s.deliverer == nil {
		return res, nil
	}

	// The outbox row stays pending on failure, so the processor retries it.
	if err := s.deliverer.Deliver(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "Inline alert delivery failed, left for retry",
			log.FieldUserID, userID,
			log.FieldOutboxID, entry.ID,
			log.FieldError, err)
		return res, nil
	}
	res.Delivered = true
	res.Message = fmt.Sprintf("Alert sent for %d%% threshold.", d.Threshold)
	return res, nil
}
