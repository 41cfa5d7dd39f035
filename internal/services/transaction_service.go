package services

import (
	"context"
	"fmt"
	"strings"

	"spendyze/internal/alert"
	"spendyze/internal/amqp"
	"spendyze/internal/core"
	"spendyze/internal/ledger"
	"spendyze/internal/log"
	"spendyze/internal/metrics"
)

// TransactionStore is the storage the transaction service writes to.
type TransactionStore interface {
	ledger.TransactionStore
	UpsertUser(ctx context.Context, u core.User) error
}

// AlertCheckPublisher queues a budget check for a user.
type AlertCheckPublisher interface {
	PublishAlertCheck(ctx context.Context, userID, reason string) error
}

// AlertChecker runs a budget check in process.
type AlertChecker interface {
	CheckBudgetAlerts(ctx context.Context, userID string) (AlertResult, error)
}

// Dashboard is the aggregate shown on the user's dashboard.
type Dashboard struct {
	core.Overview
	UsagePercent float64 `json:"usagePercent"`
}

// TransactionService orchestrates transaction writes and the alert checks
// they trigger.
type TransactionService struct {
	store     TransactionStore
	publisher AlertCheckPublisher
	checker   AlertChecker
	metrics   *metrics.Registry
	logger    *log.Logger
}

// NewTransactionService wires the service. With a publisher, checks go to the
// broker; otherwise checker, when set, runs them inline after each write.
func NewTransactionService(store TransactionStore, publisher AlertCheckPublisher, checker AlertChecker, logger *log.Logger) *TransactionService {
	if logger == nil {
		logger = log.Discard()
	}
	return &TransactionService{
		store:     store,
		publisher: publisher,
		checker:   checker,
		logger:    logger.WithComponent(log.ComponentTx),
	}
}

func (s *TransactionService) WithMetrics(m *metrics.Registry) *TransactionService {
	s.metrics = m
	return s
}

// Create stores a new transaction for user and requests an alert check.
func (s *TransactionService) Create(ctx context.Context, user core.User, tx core.Transaction) (core.Transaction, error) {
	tx.UserID = user.ID
	tx.Normalize()
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	// The user row only feeds alert delivery; failing it must not lose the write.
	if err := s.store.UpsertUser(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "Failed to upsert user", log.FieldUserID, user.ID, log.FieldError, err)
	}

	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Transaction created", log.NewFields().
		WithUser(user.ID).
		WithTransaction(created.ID, string(created.Type), created.Amount.Cents, created.Category).
		ToSlice()...)

	s.requestCheck(ctx, user.ID, amqp.ReasonCreated)
	return created, nil
}

// Update replaces a transaction owned by userID. ledger.ErrNotFound when the
// id is unknown or belongs to someone else.
func (s *TransactionService) Update(ctx context.Context, userID, id string, tx core.Transaction) (core.Transaction, error) {
	tx.ID = id
	tx.UserID = userID
	tx.Normalize()
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	updated, err := s.store.UpdateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}

	s.requestCheck(ctx, userID, amqp.ReasonUpdated)
	return updated, nil
}

func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteTransaction(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	s.requestCheck(ctx, userID, amqp.ReasonDeleted)
	return nil
}

func (s *TransactionService) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, userID, id)
}

// List returns all of the user's transactions, newest first.
func (s *TransactionService) List(ctx context.Context, userID string) ([]core.Transaction, error) {
	return s.Recent(ctx, userID, 0)
}

// Recent returns at most limit transactions, newest first.
func (s *TransactionService) Recent(ctx context.Context, userID string, limit int) ([]core.Transaction, error) {
	txs, err := s.store.RecentTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	return txs, nil
}

func (s *TransactionService) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	txs, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list transactions: %w", err)
	}
	d := Dashboard{Overview: core.Summarize(txs)}
	if d.ByCategory == nil {
		d.ByCategory = []core.CategoryAmount{}
	}
	totals := alert.Totals{Income: d.Income, Expenses: d.Expenses}
	if pct, ok := totals.Usage(); ok {
		d.UsagePercent = pct.Round(2).InexactFloat64()
	}
	return d, nil
}

// requestCheck is best effort: the write already succeeded.
func (s *TransactionService) requestCheck(ctx context.Context, userID, reason string) {
	if strings.TrimSpace(userID) == "" {
		return
	}
	if s.publisher != nil {
		if err := s.publisher.PublishAlertCheck(ctx, userID, reason); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish alert check",
				log.FieldUserID, userID, "reason", reason, log.FieldError, err)
			return
		}
		s.metrics.ObservePublish()
		return
	}
	if s.checker != nil {
		if _, err := s.checker.CheckBudgetAlerts(ctx, userID); err != nil {
			s.logger.WarnContext(ctx, "Inline alert check failed",
				log.FieldUserID, userID, log.FieldError, err)
		}
	}
}
