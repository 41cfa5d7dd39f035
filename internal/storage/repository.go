// Package storage persists the ledger in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"spendyze/internal/core"
	"spendyze/internal/ledger"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; RecordAlert relies on it together with the primary key.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func toRow(t core.Transaction) Transaction {
	return Transaction{
		ID:          t.ID,
		UserID:      t.UserID,
		Type:        string(t.Type),
		Title:       t.Title,
		AmountCents: t.Amount.Cents,
		Date:        t.Date.String(),
		Category:    t.Category,
		Description: t.Description,
		CreatedAt:   formatTS(t.CreatedAt),
		UpdatedAt:   formatTS(t.UpdatedAt),
	}
}

func fromRow(row Transaction) core.Transaction {
	// A malformed stored date yields a zero Date rather than failing the whole list.
	d, _ := core.ParseDate(row.Date)
	return core.Transaction{
		ID:          row.ID,
		UserID:      row.UserID,
		Type:        core.TransactionType(row.Type),
		Title:       row.Title,
		Amount:      core.Money{Cents: row.AmountCents},
		Date:        d,
		Category:    row.Category,
		Description: row.Description,
		CreatedAt:   parseTS(row.CreatedAt),
		UpdatedAt:   parseTS(row.UpdatedAt),
	}
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	now := r.now().UTC()
	tx.ID = uuid.NewString()
	tx.CreatedAt, tx.UpdatedAt = now, now

	if err := r.queries.CreateTransaction(ctx, toRow(tx)); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"user_id", tx.UserID,
		"type", tx.Type,
		"amount_cents", tx.Amount.Cents)
	return tx, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	tx.UpdatedAt = r.now().UTC()
	n, err := r.queries.UpdateTransaction(ctx, toRow(tx))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return core.Transaction{}, ledger.ErrNotFound
	}
	return r.GetTransaction(ctx, tx.UserID, tx.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	n, err := r.queries.DeleteTransaction(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	slog.InfoContext(ctx, "Transaction deleted", "id", id, "user_id", userID)
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return fromRow(row), nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	return r.RecentTransactions(ctx, userID, 0)
}

func (r *SQLiteRepository) RecentTransactions(ctx context.Context, userID string, limit int) ([]core.Transaction, error) {
	l := int64(limit)
	if l <= 0 {
		l = -1
	}
	rows, err := r.queries.ListTransactions(ctx, userID, l)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, len(rows))
	for i, row := range rows {
		out[i] = fromRow(row)
	}
	return out, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	u, err := r.queries.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return core.User{ID: u.ID, Name: u.Name, Email: u.Email}, nil
}

// UpsertUser creates the user or fills in non-empty name and email.
func (r *SQLiteRepository) UpsertUser(ctx context.Context, u core.User) error {
	if u.ID == "" {
		return core.ErrEmptyUser
	}
	if err := r.queries.UpsertUser(ctx, u.ID, u.Name, u.Email, formatTS(r.now())); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	ids, err := r.queries.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return ids, nil
}

func (r *SQLiteRepository) GetNotifiedThresholds(ctx context.Context, userID string) ([]int, error) {
	ths, err := r.queries.GetNotifiedThresholds(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get notified thresholds: %w", err)
	}
	return ths, nil
}

func (r *SQLiteRepository) AppendNotifiedThreshold(ctx context.Context, userID string, threshold int) error {
	n, err := r.queries.InsertNotifiedThreshold(ctx, userID, threshold, formatTS(r.now()))
	if err != nil {
		return fmt.Errorf("append notified threshold: %w", err)
	}
	if n == 0 {
		return ledger.ErrAlreadyNotified
	}
	return nil
}

func (r *SQLiteRepository) ResetNotifiedThresholds(ctx context.Context, userID string) error {
	if err := r.queries.ResetNotifiedThresholds(ctx, userID); err != nil {
		return fmt.Errorf("reset notified thresholds: %w", err)
	}
	slog.InfoContext(ctx, "Notified thresholds reset", "user_id", userID)
	return nil
}

// RecordAlert marks the threshold notified and enqueues the delivery in one
// transaction. Nothing is written when the threshold is already present.
func (r *SQLiteRepository) RecordAlert(ctx context.Context, rec ledger.AlertRecord) (ledger.OutboxEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.OutboxEntry{}, fmt.Errorf("begin record alert: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	at := formatTS(r.now())

	n, err := q.InsertNotifiedThreshold(ctx, rec.UserID, rec.Threshold, at)
	if err != nil {
		return ledger.OutboxEntry{}, fmt.Errorf("append notified threshold: %w", err)
	}
	if n == 0 {
		return ledger.OutboxEntry{}, ledger.ErrAlreadyNotified
	}

	row, err := q.EnqueueAlert(ctx, rec.UserID, rec.Threshold, rec.Income.Cents, rec.Expenses.Cents, at)
	if err != nil {
		return ledger.OutboxEntry{}, fmt.Errorf("enqueue alert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ledger.OutboxEntry{}, fmt.Errorf("commit record alert: %w", err)
	}

	slog.InfoContext(ctx, "Alert recorded",
		"user_id", rec.UserID,
		"threshold", rec.Threshold,
		"outbox_id", row.ID)
	return toEntry(row), nil
}

func toEntry(o AlertOutbox) ledger.OutboxEntry {
	return ledger.OutboxEntry{
		ID:        o.ID,
		UserID:    o.UserID,
		Threshold: o.Threshold,
		Income:    core.Money{Cents: o.IncomeCents},
		Expenses:  core.Money{Cents: o.ExpenseCents},
		Status:    o.Status,
		Attempts:  o.Attempts,
		LastError: o.LastError,
		CreatedAt: parseTS(o.CreatedAt),
		UpdatedAt: parseTS(o.UpdatedAt),
	}
}

func (r *SQLiteRepository) DequeueAlerts(ctx context.Context, limit int) ([]ledger.OutboxEntry, error) {
	rows, err := r.queries.DequeueAlerts(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("dequeue alerts: %w", err)
	}
	out := make([]ledger.OutboxEntry, len(rows))
	for i, row := range rows {
		out[i] = toEntry(row)
	}
	return out, nil
}

func affected(n int64, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) MarkAlertProcessing(ctx context.Context, id int64) error {
	n, err := r.queries.ClaimAlert(ctx, id, formatTS(r.now()))
	return affected(n, err, "mark alert processing")
}

func (r *SQLiteRepository) MarkAlertCompleted(ctx context.Context, id int64) error {
	n, err := r.queries.CompleteAlert(ctx, id, formatTS(r.now()))
	return affected(n, err, "mark alert completed")
}

func (r *SQLiteRepository) MarkAlertFailed(ctx context.Context, id int64, lastErr string) error {
	n, err := r.queries.RecordAlertAttempt(ctx, id, ledger.StatusFailed, lastErr, formatTS(r.now()))
	if err := affected(n, err, "mark alert failed"); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Alert delivery marked as failed", "outbox_id", id)
	return nil
}

func (r *SQLiteRepository) IncrementAlertAttempt(ctx context.Context, id int64, lastErr string) error {
	n, err := r.queries.RecordAlertAttempt(ctx, id, ledger.StatusPending, lastErr, formatTS(r.now()))
	return affected(n, err, "increment alert attempt")
}

func (r *SQLiteRepository) ReleaseAlert(ctx context.Context, id int64, lastErr string) error {
	n, err := r.queries.ReleaseAlert(ctx, id, lastErr, formatTS(r.now()))
	return affected(n, err, "release alert")
}

func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context, claimedBefore time.Time) (int64, error) {
	n, err := r.queries.ResetStaleProcessing(ctx, formatTS(claimedBefore))
	if err != nil {
		return 0, fmt.Errorf("reset stale processing: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) CleanupCompletedAlerts(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.queries.CleanupCompletedAlerts(ctx, formatTS(before))
	if err != nil {
		return 0, fmt.Errorf("cleanup completed alerts: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) OutboxStats(ctx context.Context) (ledger.OutboxStats, error) {
	p, pr, c, f, err := r.queries.OutboxStats(ctx)
	if err != nil {
		return ledger.OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}
	return ledger.OutboxStats{Pending: p, Processing: pr, Completed: c, Failed: f}, nil
}

func (r *SQLiteRepository) RetryFailedAlerts(ctx context.Context) (int64, error) {
	n, err := r.queries.RetryFailedAlerts(ctx, formatTS(r.now()))
	if err != nil {
		return 0, fmt.Errorf("retry failed alerts: %w", err)
	}
	return n, nil
}
