package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the SQL used by SQLiteRepository.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// timestamps are stored as fixed-width UTC text so they sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type Transaction struct {
	ID          string
	UserID      string
	Type        string
	Title       string
	AmountCents int64
	Date        string
	Category    string
	Description string
	CreatedAt   string
	UpdatedAt   string
}

const transactionColumns = `id, user_id, type, title, amount_cents, date, category, description, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Title, &t.AmountCents, &t.Date,
		&t.Category, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

const createTransaction = `INSERT INTO transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, t Transaction) error {
	_, err := q.db.ExecContext(ctx, createTransaction, t.ID, t.UserID, t.Type, t.Title,
		t.AmountCents, t.Date, t.Category, t.Description, t.CreatedAt, t.UpdatedAt)
	return err
}

const updateTransaction = `UPDATE transactions
SET type = ?, title = ?, amount_cents = ?, date = ?, category = ?, description = ?, updated_at = ?
WHERE id = ? AND user_id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, t Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransaction, t.Type, t.Title, t.AmountCents, t.Date,
		t.Category, t.Description, t.UpdatedAt, t.ID, t.UserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ? AND user_id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, userID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ? AND user_id = ?`

func (q *Queries) GetTransaction(ctx context.Context, userID, id string) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id, userID))
}

// A negative LIMIT means no limit in SQLite.
const listTransactions = `SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = ?
ORDER BY date DESC, created_at DESC
LIMIT ?`

func (q *Queries) ListTransactions(ctx context.Context, userID string, limit int64) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const upsertUser = `INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END,
    email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE users.email END`

func (q *Queries) UpsertUser(ctx context.Context, id, name, email, createdAt string) error {
	_, err := q.db.ExecContext(ctx, upsertUser, id, name, email, createdAt)
	return err
}

const getUser = `SELECT id, name, email FROM users WHERE id = ?`

type User struct {
	ID    string
	Name  string
	Email string
}

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(&u.ID, &u.Name, &u.Email)
	return u, err
}

const listUserIDs = `SELECT id FROM users ORDER BY id`

func (q *Queries) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listUserIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const getNotifiedThresholds = `SELECT threshold FROM notified_thresholds WHERE user_id = ? ORDER BY threshold`

func (q *Queries) GetNotifiedThresholds(ctx context.Context, userID string) ([]int, error) {
	rows, err := q.db.QueryContext(ctx, getNotifiedThresholds, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var th int
		if err := rows.Scan(&th); err != nil {
			return nil, err
		}
		out = append(out, th)
	}
	return out, rows.Err()
}

const insertNotifiedThreshold = `INSERT INTO notified_thresholds (user_id, threshold, notified_at)
VALUES (?, ?, ?)
ON CONFLICT (user_id, threshold) DO NOTHING`

// InsertNotifiedThreshold returns the number of rows inserted: 0 when the
// threshold was already present.
func (q *Queries) InsertNotifiedThreshold(ctx context.Context, userID string, threshold int, at string) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertNotifiedThreshold, userID, threshold, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const resetNotifiedThresholds = `DELETE FROM notified_thresholds WHERE user_id = ?`

func (q *Queries) ResetNotifiedThresholds(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, resetNotifiedThresholds, userID)
	return err
}

type AlertOutbox struct {
	ID           int64
	UserID       string
	Threshold    int
	IncomeCents  int64
	ExpenseCents int64
	Status       string
	Attempts     int
	LastError    string
	CreatedAt    string
	UpdatedAt    string
}

const outboxColumns = `id, user_id, threshold, income_cents, expense_cents, status, attempts, last_error, created_at, updated_at`

func scanOutbox(row interface{ Scan(...any) error }) (AlertOutbox, error) {
	var o AlertOutbox
	err := row.Scan(&o.ID, &o.UserID, &o.Threshold, &o.IncomeCents, &o.ExpenseCents,
		&o.Status, &o.Attempts, &o.LastError, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

const enqueueAlert = `INSERT INTO alert_outbox (user_id, threshold, income_cents, expense_cents, status, created_at, updated_at)
VALUES (?, ?, ?, ?, 'pending', ?, ?)
RETURNING ` + outboxColumns

func (q *Queries) EnqueueAlert(ctx context.Context, userID string, threshold int, income, expenses int64, at string) (AlertOutbox, error) {
	return scanOutbox(q.db.QueryRowContext(ctx, enqueueAlert, userID, threshold, income, expenses, at, at))
}

const dequeueAlerts = `SELECT ` + outboxColumns + ` FROM alert_outbox
WHERE status = 'pending'
ORDER BY id
LIMIT ?`

func (q *Queries) DequeueAlerts(ctx context.Context, limit int64) ([]AlertOutbox, error) {
	rows, err := q.db.QueryContext(ctx, dequeueAlerts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AlertOutbox
	for rows.Next() {
		o, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

const claimAlert = `UPDATE alert_outbox SET status = 'processing', updated_at = ?
WHERE id = ? AND status = 'pending'`

// ClaimAlert moves a pending row to processing. Zero rows means another
// worker holds it or it is no longer pending.
func (q *Queries) ClaimAlert(ctx context.Context, id int64, at string) (int64, error) {
	res, err := q.db.ExecContext(ctx, claimAlert, at, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const recordAlertAttempt = `UPDATE alert_outbox
SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
WHERE id = ?`

func (q *Queries) RecordAlertAttempt(ctx context.Context, id int64, status, lastErr, at string) (int64, error) {
	res, err := q.db.ExecContext(ctx, recordAlertAttempt, status, lastErr, at, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const completeAlert = `UPDATE alert_outbox SET status = 'completed', last_error = '', updated_at = ? WHERE id = ?`

func (q *Queries) CompleteAlert(ctx context.Context, id int64, at string) (int64, error) {
	res, err := q.db.ExecContext(ctx, completeAlert, at, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const releaseAlert = `UPDATE alert_outbox SET status = 'pending', last_error = ?, updated_at = ?
WHERE id = ? AND status = 'processing'`

func (q *Queries) ReleaseAlert(ctx context.Context, id int64, lastErr, at string) (int64, error) {
	res, err := q.db.ExecContext(ctx, releaseAlert, lastErr, at, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const resetStaleProcessing = `UPDATE alert_outbox SET status = 'pending'
WHERE status = 'processing' AND updated_at < ?`

func (q *Queries) ResetStaleProcessing(ctx context.Context, before string) (int64, error) {
	res, err := q.db.ExecContext(ctx, resetStaleProcessing, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const cleanupCompletedAlerts = `DELETE FROM alert_outbox WHERE status = 'completed' AND updated_at < ?`

func (q *Queries) CleanupCompletedAlerts(ctx context.Context, before string) (int64, error) {
	res, err := q.db.ExecContext(ctx, cleanupCompletedAlerts, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const outboxStats = `SELECT
    COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
FROM alert_outbox`

func (q *Queries) OutboxStats(ctx context.Context) (pending, processing, completed, failed int64, err error) {
	err = q.db.QueryRowContext(ctx, outboxStats).Scan(&pending, &processing, &completed, &failed)
	return
}

const retryFailedAlerts = `UPDATE alert_outbox SET status = 'pending', attempts = 0, updated_at = ? WHERE status = 'failed'`

func (q *Queries) RetryFailedAlerts(ctx context.Context, at string) (int64, error) {
	res, err := q.db.ExecContext(ctx, retryFailedAlerts, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
