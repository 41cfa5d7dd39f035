package services

import (
	"context"
	"errors"
	"sync"

	"spendyze/internal/ai"
	"spendyze/internal/core"
	"spendyze/internal/notify"
)

func tx(user string, typ core.TransactionType, cents int64, day int) core.Transaction {
	return core.Transaction{
		UserID:   user,
		Type:     typ,
		Title:    string(typ),
		Amount:   core.Money{Cents: cents},
		Date:     core.NewDate(2025, 3, day),
		Category: "Food",
	}
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeSummarizer struct {
	summary ai.Summary
	err     error
	purpose string
	n       int
}

func (f *fakeSummarizer) Summarize(_ context.Context, txs []core.Transaction, purpose string) (ai.Summary, error) {
	f.purpose = purpose
	f.n = len(txs)
	return f.summary, f.err
}

type fakePublisher struct {
	calls []string
	err   error
}

func (f *fakePublisher) PublishAlertCheck(_ context.Context, userID, reason string) error {
	f.calls = append(f.calls, userID+":"+reason)
	return f.err
}

var errBoom = errors.New("boom")
