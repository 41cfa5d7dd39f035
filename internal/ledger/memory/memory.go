// Package memory is an in-process ledger.Store for development and tests.
package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendyze/internal/core"
	"spendyze/internal/ledger"
)

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	users    map[string]core.User
	txs      map[string]core.Transaction
	notified map[string]map[int]struct{}
	outbox   []*ledger.OutboxEntry
	nextID   int64
}

var _ ledger.Store = (*Store)(nil)

func New(users ...core.User) *Store {
	s := &Store{
		now:      time.Now,
		users:    map[string]core.User{},
		txs:      map[string]core.Transaction{},
		notified: map[string]map[int]struct{}{},
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

// NewFromFiles seeds users from base/seed_users.txt, one "id,name,email" per
// line. A demo user is created when the file is missing or empty.
func NewFromFiles(base string) *Store {
	users := readUsers(filepath.Join(base, "seed_users.txt"))
	if len(users) == 0 {
		users = []core.User{{ID: "demo", Name: "Demo User", Email: "demo@example.com"}}
	}
	return New(users...)
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error { return nil }

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	tx.ID = uuid.NewString()
	tx.CreatedAt, tx.UpdatedAt = now, now
	s.txs[tx.ID] = tx
	return tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[tx.ID]
	if !ok || cur.UserID != tx.UserID {
		return core.Transaction{}, ledger.ErrNotFound
	}
	tx.CreatedAt = cur.CreatedAt
	tx.UpdatedAt = s.now().UTC()
	s.txs[tx.ID] = tx
	return tx, nil
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[id]
	if !ok || cur.UserID != userID {
		return ledger.ErrNotFound
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) GetTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[id]
	if !ok || cur.UserID != userID {
		return core.Transaction{}, ledger.ErrNotFound
	}
	return cur, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	return s.RecentTransactions(ctx, userID, 0)
}

func (s *Store) RecentTransactions(_ context.Context, userID string, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date.Time) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Date.After(out[j].Date.Time)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, ledger.ErrNotFound
	}
	return u, nil
}

func (s *Store) UpsertUser(_ context.Context, u core.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return core.ErrEmptyUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Empty fields never overwrite known ones.
	if cur, ok := s.users[u.ID]; ok {
		if u.Name == "" {
			u.Name = cur.Name
		}
		if u.Email == "" {
			u.Email = cur.Email
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) ListUserIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) GetNotifiedThresholds(_ context.Context, userID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.notified[userID]))
	for t := range s.notified[userID] {
		out = append(out, t)
	}
	sort.Ints(out)
	return out, nil
}

func (s *Store) AppendNotifiedThreshold(_ context.Context, userID string, threshold int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(userID, threshold)
}

func (s *Store) appendLocked(userID string, threshold int) error {
	set, ok := s.notified[userID]
	if !ok {
		set = map[int]struct{}{}
		s.notified[userID] = set
	}
	if _, dup := set[threshold]; dup {
		return ledger.ErrAlreadyNotified
	}
	set[threshold] = struct{}{}
	return nil
}

func (s *Store) ResetNotifiedThresholds(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notified, userID)
	return nil
}

func (s *Store) RecordAlert(_ context.Context, rec ledger.AlertRecord) (ledger.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(rec.UserID, rec.Threshold); err != nil {
		return ledger.OutboxEntry{}, err
	}
	now := s.now().UTC()
	s.nextID++
	e := &ledger.OutboxEntry{
		ID:        s.nextID,
		UserID:    rec.UserID,
		Threshold: rec.Threshold,
		Income:    rec.Income,
		Expenses:  rec.Expenses,
		Status:    ledger.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.outbox = append(s.outbox, e)
	return *e, nil
}

func (s *Store) DequeueAlerts(_ context.Context, limit int) ([]ledger.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.OutboxEntry
	for _, e := range s.outbox {
		if e.Status != ledger.StatusPending {
			continue
		}
		out = append(out, *e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) update(id int64, fn func(e *ledger.OutboxEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.outbox {
		if e.ID == id {
			fn(e)
			e.UpdatedAt = s.now().UTC()
			return nil
		}
	}
	return ledger.ErrNotFound
}

func (s *Store) MarkAlertProcessing(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.outbox {
		if e.ID == id && e.Status == ledger.StatusPending {
			e.Status = ledger.StatusProcessing
			e.UpdatedAt = s.now().UTC()
			return nil
		}
	}
	return ledger.ErrNotFound
}

func (s *Store) MarkAlertCompleted(_ context.Context, id int64) error {
	return s.update(id, func(e *ledger.OutboxEntry) {
		e.Status = ledger.StatusCompleted
		e.LastError = ""
	})
}

func (s *Store) MarkAlertFailed(_ context.Context, id int64, lastErr string) error {
	return s.update(id, func(e *ledger.OutboxEntry) {
		e.Status = ledger.StatusFailed
		e.Attempts++
		e.LastError = lastErr
	})
}

func (s *Store) IncrementAlertAttempt(_ context.Context, id int64, lastErr string) error {
	return s.update(id, func(e *ledger.OutboxEntry) {
		e.Status = ledger.StatusPending
		e.Attempts++
		e.LastError = lastErr
	})
}

func (s *Store) ReleaseAlert(_ context.Context, id int64, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.outbox {
		if e.ID == id && e.Status == ledger.StatusProcessing {
			e.Status = ledger.StatusPending
			e.LastError = lastErr
			e.UpdatedAt = s.now().UTC()
			return nil
		}
	}
	return ledger.ErrNotFound
}

func (s *Store) ResetStaleProcessing(_ context.Context, claimedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.outbox {
		if e.Status == ledger.StatusProcessing && e.UpdatedAt.Before(claimedBefore) {
			e.Status = ledger.StatusPending
			n++
		}
	}
	return n, nil
}

func (s *Store) CleanupCompletedAlerts(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.outbox[:0]
	var removed int64
	for _, e := range s.outbox {
		if e.Status == ledger.StatusCompleted && e.UpdatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.outbox = kept
	return removed, nil
}

func (s *Store) OutboxStats(context.Context) (ledger.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st ledger.OutboxStats
	for _, e := range s.outbox {
		switch e.Status {
		case ledger.StatusPending:
			st.Pending++
		case ledger.StatusProcessing:
			st.Processing++
		case ledger.StatusCompleted:
			st.Completed++
		case ledger.StatusFailed:
			st.Failed++
		}
	}
	return st, nil
}

func (s *Store) RetryFailedAlerts(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.outbox {
		if e.Status == ledger.StatusFailed {
			e.Status = ledger.StatusPending
			e.Attempts = 0
			n++
		}
	}
	return n, nil
}

func readUsers(path string) []core.User {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	seen := map[string]struct{}{}
	var out []core.User
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		if len(parts) != 3 {
			continue
		}
		u := core.User{
			ID:    strings.TrimSpace(parts[0]),
			Name:  strings.TrimSpace(parts[1]),
			Email: strings.TrimSpace(parts[2]),
		}
		if u.ID == "" {
			continue
		}
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}
