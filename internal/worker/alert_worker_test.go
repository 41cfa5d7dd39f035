package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendyze/internal/alert"
	"spendyze/internal/amqp"
	"spendyze/internal/core"
	"spendyze/internal/ledger/memory"
	"spendyze/internal/lock"
	"spendyze/internal/services"
)

type stubChecker struct {
	mu     sync.Mutex
	seen   []string
	failOn string
}

func (s *stubChecker) CheckBudgetAlerts(_ context.Context, userID string) (services.AlertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, userID)
	if userID == s.failOn {
		return services.AlertResult{}, alert.Wrap(alert.ErrStoreRead, "list transactions", errors.New("db locked"))
	}
	return services.AlertResult{Kind: alert.NoAlert}, nil
}

func TestHandleAlertCheck(t *testing.T) {
	checker := &stubChecker{failOn: "bad"}
	w := NewAlertWorker(checker, nil, 1, nil)

	require.NoError(t, w.HandleAlertCheck(context.Background(), amqp.NewAlertCheckMessage("u1", amqp.ReasonCreated)))

	err := w.HandleAlertCheck(context.Background(), amqp.NewAlertCheckMessage("bad", amqp.ReasonCreated))
	require.Error(t, err)
	kind, ok := alert.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, alert.ErrStoreRead, kind)
}

func TestStartupSweep_SkipsFailures(t *testing.T) {
	store := memory.New(core.User{ID: "a"}, core.User{ID: "b"}, core.User{ID: "bad"})
	checker := &stubChecker{failOn: "bad"}
	w := NewAlertWorker(checker, store, 2, nil)

	checked, err := w.StartupSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, checked)
	assert.ElementsMatch(t, []string{"a", "b", "bad"}, checker.seen)
}

func TestStartupSweep_RecordsMissedAlerts(t *testing.T) {
	ctx := context.Background()
	store := memory.New(core.User{ID: "u1"})
	for _, x := range []core.Transaction{
		{UserID: "u1", Type: core.Income, Title: "Pay", Amount: core.Money{Cents: 1000}, Date: core.NewDate(2025, 1, 1), Category: "Salary"},
		{UserID: "u1", Type: core.Expense, Title: "Rent", Amount: core.Money{Cents: 950}, Date: core.NewDate(2025, 1, 2), Category: "Housing"},
	} {
		_, err := store.CreateTransaction(ctx, x)
		require.NoError(t, err)
	}

	w := NewAlertWorker(services.NewAlertService(store, lock.NewLocal(), nil), store, 1, nil)
	_, err := w.StartupSweep(ctx)
	require.NoError(t, err)

	notified, _ := store.GetNotifiedThresholds(ctx, "u1")
	assert.Equal(t, []int{90}, notified)
}
