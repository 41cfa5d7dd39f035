// Package ledger declares the persistence ports shared by the SQLite and
// in-memory stores.
package ledger

import (
	"context"
	"errors"
	"time"

	"spendyze/internal/core"
)

var (
	// ErrNotFound is returned when a record does not exist or is not owned by
	// the requesting user.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyNotified is returned when a threshold is already in the user's
	// notified set. Callers treat it as a lost race, not a failure.
	ErrAlreadyNotified = errors.New("threshold already notified")
)

// Outbox entry states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type (
	// AlertRecord is what gets persisted when a threshold fires.
	AlertRecord struct {
		UserID    string
		Threshold int
		Income    core.Money
		Expenses  core.Money
	}

	// OutboxEntry is one pending alert delivery.
	OutboxEntry struct {
		ID        int64
		UserID    string
		Threshold int
		Income    core.Money
		Expenses  core.Money
		Status    string
		Attempts  int
		LastError string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	OutboxStats struct {
		Pending    int64 `json:"pending"`
		Processing int64 `json:"processing"`
		Completed  int64 `json:"completed"`
		Failed     int64 `json:"failed"`
	}
)

// Ports for outbound adapters.
type (
	TransactionSource interface {
		// ListTransactions returns every transaction of the user, unordered.
		ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
	}

	TransactionStore interface {
		TransactionSource
		CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		// UpdateTransaction replaces the mutable fields of a transaction owned by tx.UserID.
		UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, userID, id string) error
		GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
		// RecentTransactions returns up to limit transactions, newest date first.
		// A limit <= 0 returns all of them.
		RecentTransactions(ctx context.Context, userID string, limit int) ([]core.Transaction, error)
	}

	UserStore interface {
		GetUser(ctx context.Context, id string) (core.User, error)
		UpsertUser(ctx context.Context, u core.User) error
		ListUserIDs(ctx context.Context) ([]string, error)
	}

	NotificationStateStore interface {
		GetNotifiedThresholds(ctx context.Context, userID string) ([]int, error)
		// AppendNotifiedThreshold fails with ErrAlreadyNotified when present.
		AppendNotifiedThreshold(ctx context.Context, userID string, threshold int) error
		// ResetNotifiedThresholds starts a new budget cycle for the user.
		ResetNotifiedThresholds(ctx context.Context, userID string) error
	}

	AlertRecorder interface {
		// RecordAlert appends the threshold and enqueues its delivery atomically.
		RecordAlert(ctx context.Context, rec AlertRecord) (OutboxEntry, error)
	}

	Outbox interface {
		DequeueAlerts(ctx context.Context, limit int) ([]OutboxEntry, error)
		// MarkAlertProcessing claims a pending entry; ErrNotFound when it is
		// missing or already claimed.
		MarkAlertProcessing(ctx context.Context, id int64) error
		MarkAlertCompleted(ctx context.Context, id int64) error
		MarkAlertFailed(ctx context.Context, id int64, lastErr string) error
		IncrementAlertAttempt(ctx context.Context, id int64, lastErr string) error
		// ReleaseAlert returns a claimed entry to pending without counting
		// an attempt.
		ReleaseAlert(ctx context.Context, id int64, lastErr string) error
		// ResetStaleProcessing returns entries claimed before the cutoff to
		// pending and reports how many moved.
		ResetStaleProcessing(ctx context.Context, claimedBefore time.Time) (int64, error)
		CleanupCompletedAlerts(ctx context.Context, before time.Time) (int64, error)
		OutboxStats(ctx context.Context) (OutboxStats, error)
		RetryFailedAlerts(ctx context.Context) (int64, error)
	}

	// Store is everything the services need from a backend.
	Store interface {
		TransactionStore
		UserStore
		NotificationStateStore
		AlertRecorder
		Outbox
		Ping(ctx context.Context) error
		Close() error
	}
)
