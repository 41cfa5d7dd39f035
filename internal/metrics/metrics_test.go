package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	r := New()
	r.ObserveDecision("fire_alert", 90)
	r.ObserveDecision("fire_alert", 90)
	r.ObserveDecision("no_alert", 0)
	r.ObserveDispatch(nil)
	r.ObserveDispatch(errors.New("smtp"))
	r.ObserveDispatch(context.DeadlineExceeded)
	r.ObserveAI("summarize", nil)
	r.ObserveAlertError("store_read")
	r.SetOutbox(3, 1, 10, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.AlertDecisions.WithLabelValues("fire_alert", "90")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.AlertDecisions.WithLabelValues("no_alert", "0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.AlertDispatches.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.AlertDispatches.WithLabelValues("timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.OutboxDepth.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.AlertErrors.WithLabelValues("store_read")))
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.ObserveDecision("no_alert", 0)
	r.ObserveHTTP("GET", "/", 200, time.Millisecond)
	r.SetOutbox(1, 1, 1, 1)
}

func TestHandler(t *testing.T) {
	r := New()
	r.ObserveHTTP("GET", "/api/transactions", 200, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(body, `spendyze_http_requests_total{code="200",method="GET",route="/api/transactions"} 1`), body)
}
