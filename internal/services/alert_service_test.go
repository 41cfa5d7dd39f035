package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendyze/internal/alert"
	"spendyze/internal/core"
	"spendyze/internal/ledger"
	"spendyze/internal/ledger/memory"
	"spendyze/internal/lock"
	"spendyze/internal/log"
)

func seed(t *testing.T, s *memory.Store, txs ...core.Transaction) {
	t.Helper()
	for _, x := range txs {
		_, err := s.CreateTransaction(context.Background(), x)
		require.NoError(t, err)
	}
}

func TestCheckBudgetAlerts_NoIncome(t *testing.T) {
	store := memory.New()
	seed(t, store, tx("u1", core.Expense, 5000, 1))
	svc := NewAlertService(store, lock.NewLocal(), log.Discard())

	res, err := svc.CheckBudgetAlerts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, alert.NoAlert, res.Kind)
	assert.Equal(t, MsgNoIncome, res.Message)
}

func TestCheckBudgetAlerts_FiresOncePerThreshold(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, tx("u1", core.Income, 100000, 1), tx("u1", core.Expense, 95000, 2))
	svc := NewAlertService(store, lock.NewLocal(), log.Discard())

	res, err := svc.CheckBudgetAlerts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, alert.FireAlert, res.Kind)
	assert.Equal(t, 90, res.Threshold)
	assert.Equal(t, "Alert queued for 90% threshold.", res.Message)
	assert.False(t, res.Delivered)

	res, err = svc.CheckBudgetAlerts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, alert.NoAlert, res.Kind)
	assert.Equal(t, MsgNoNewAlerts, res.Message)

	notified, _ := store.GetNotifiedThresholds(ctx, "u1")
	assert.Equal(t, []int{90}, notified)
	stats, _ := store.OutboxStats(ctx)
	assert.Equal(t, int64(1), stats.Pending)
}

func TestCheckBudgetAlerts_ConcurrentChecksRecordOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, tx("u1", core.Income, 1000, 1), tx("u1", core.Expense, 1200, 2))
	svc := NewAlertService(store, lock.NewLocal(), log.Discard())

	var wg sync.WaitGroup
	results := make([]AlertResult, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.CheckBudgetAlerts(ctx, "u1")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	fired := map[int]int{}
	for _, r := range results {
		if r.Kind == alert.FireAlert {
			fired[r.Threshold]++
		}
	}
	assert.Equal(t, map[int]int{100: 1, 90: 1}, fired)
	stats, _ := store.OutboxStats(ctx)
	assert.Equal(t, int64(2), stats.Pending)
}

func TestCheckBudgetAlerts_SyncDelivery(t *testing.T) {
	ctx := context.Background()
	store := memory.New(core.User{ID: "u1", Name: "Asha", Email: "asha@example.com"})
	seed(t, store, tx("u1", core.Income, 1000, 1), tx("u1", core.Expense, 1000, 2))
	disp := &fakeDispatcher{}
	proc := NewAlertProcessor(store, nil, disp, DefaultAlertProcessorConfig(), log.Discard())
	svc := NewAlertService(store, lock.NewLocal(), log.Discard()).WithDeliverer(proc)

	res, err := svc.CheckBudgetAlerts(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, "Alert sent for 100% threshold.", res.Message)
	require.Equal(t, 1, disp.count())
	assert.Equal(t, "asha@example.com", disp.sent[0].User.Email)

	stats, _ := store.OutboxStats(ctx)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestCheckBudgetAlerts_SyncDeliveryFailureStaysPending(t *testing.T) {
	ctx := context.Background()
	store := memory.New(core.User{ID: "u1", Email: "u1@example.com"})
	seed(t, store, tx("u1", core.Income, 1000, 1), tx("u1", core.Expense, 950, 2))
	disp := &fakeDispatcher{err: errBoom}
	proc := NewAlertProcessor(store, nil, disp, DefaultAlertProcessorConfig(), log.Discard())
	svc := NewAlertService(store, lock.NewLocal(), log.Discard()).WithDeliverer(proc)

	res, err := svc.CheckBudgetAlerts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, alert.FireAlert, res.Kind)
	assert.False(t, res.Delivered)
	assert.Equal(t, "Alert queued for 90% threshold.", res.Message)

	pending, _ := store.DequeueAlerts(ctx, 10)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
}

type failingSource struct {
	*memory.Store
	listErr   error
	recordErr error
}

func (f failingSource) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.ListTransactions(ctx, userID)
}

func (f failingSource) RecordAlert(ctx context.Context, rec ledger.AlertRecord) (ledger.OutboxEntry, error) {
	if f.recordErr != nil {
		return ledger.OutboxEntry{}, f.recordErr
	}
	return f.Store.RecordAlert(ctx, rec)
}

func TestCheckBudgetAlerts_Errors(t *testing.T) {
	store := memory.New()
	seed(t, store, tx("u1", core.Income, 1000, 1), tx("u1", core.Expense, 950, 2))

	t.Run("read failure", func(t *testing.T) {
		svc := NewAlertService(failingSource{Store: store, listErr: errBoom}, nil, nil)
		_, err := svc.CheckBudgetAlerts(context.Background(), "u1")
		kind, ok := alert.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, alert.ErrStoreRead, kind)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("write failure", func(t *testing.T) {
		svc := NewAlertService(failingSource{Store: store, recordErr: errBoom}, nil, nil)
		_, err := svc.CheckBudgetAlerts(context.Background(), "u1")
		kind, ok := alert.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, alert.ErrStoreWrite, kind)

		notified, _ := store.GetNotifiedThresholds(context.Background(), "u1")
		assert.Empty(t, notified, "nothing must be recorded on a failed write")
	})

	t.Run("lost race is not an error", func(t *testing.T) {
		svc := NewAlertService(failingSource{Store: store, recordErr: ledger.ErrAlreadyNotified}, nil, nil)
		res, err := svc.CheckBudgetAlerts(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, alert.NoAlert, res.Kind)
	})

	t.Run("lock failure", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		locker := lock.NewLocal()
		unlock, err := locker.Lock(ctx, "alert:u1")
		require.NoError(t, err)
		defer unlock()
		cancel()

		svc := NewAlertService(store, locker, nil)
		_, err = svc.CheckBudgetAlerts(ctx, "u1")
		kind, ok := alert.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, alert.ErrLock, kind)
	})
}
