package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendyze/internal/core"
	"spendyze/internal/ledger/memory"
	"spendyze/internal/lock"
	"spendyze/internal/log"
	"spendyze/internal/services"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func sqliteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "spendyze.db"))
	t.Setenv("LOG_LEVEL", "error")
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	t.Setenv("DATA_BACKEND", "sheets")
	_, err := run(t, "outbox", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid data backend")
}

func TestMigrateRequiresSQLite(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	_, err := run(t, "migrate")
	assert.Error(t, err)
}

func TestMigrateAndOutboxCommands(t *testing.T) {
	sqliteEnv(t)

	_, err := run(t, "migrate")
	require.NoError(t, err)

	out, err := run(t, "outbox", "stats")
	require.NoError(t, err)
	assert.JSONEq(t, `{"pending":0,"processing":0,"completed":0,"failed":0}`, out)

	out, err = run(t, "outbox", "retry-failed")
	require.NoError(t, err)
	assert.Equal(t, "0 alerts queued for retry\n", out)
}

func TestAlertsCommands(t *testing.T) {
	sqliteEnv(t)

	_, err := run(t, "alerts", "check")
	assert.Error(t, err, "--user is required")

	out, err := run(t, "alerts", "check", "--user", "u1")
	require.NoError(t, err)
	var res services.AlertResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, services.MsgNoIncome, res.Message)

	out, err = run(t, "alerts", "reset", "--user", "u1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Thresholds reset for u1"))
}

func TestCheckAlertsOutput(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, tx := range []core.Transaction{
		{UserID: "u1", Type: core.Income, Title: "Salary", Amount: core.Money{Cents: 100000}, Date: core.NewDate(2025, 3, 1), Category: "Salary"},
		{UserID: "u1", Type: core.Expense, Title: "Rent", Amount: core.Money{Cents: 100000}, Date: core.NewDate(2025, 3, 2), Category: "Housing"},
	} {
		_, err := store.CreateTransaction(ctx, tx)
		require.NoError(t, err)
	}

	var out bytes.Buffer
	svc := services.NewAlertService(store, lock.NewLocal(), log.Discard())
	require.NoError(t, checkAlerts(ctx, &out, svc, "u1"))
	assert.Contains(t, out.String(), `"threshold": 100`)
	assert.Contains(t, out.String(), "Alert queued for 100% threshold.")

	assert.Error(t, checkAlerts(ctx, &out, svc, " "))
}
