package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"spendyze/internal/log"
	"spendyze/internal/metrics"
)

func TestHandler_AssignsRequestIDAndLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, Output: &buf, Component: "test"})
	reg := metrics.New()

	var seenID string
	m := NewMiddleware(logger, func(*http.Request) string { return "10.0.0.1" },
		func(*http.Request) string { return "/api/things/{id}" }, reg)
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		if log.FromContext(r.Context()).Component() != log.ComponentTrace {
			t.Error("request logger missing from context")
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/things/7", nil))

	if seenID == "" || rec.Header().Get(HeaderRequestID) != seenID {
		t.Fatalf("request id mismatch: ctx=%q header=%q", seenID, rec.Header().Get(HeaderRequestID))
	}
	out := buf.String()
	if !strings.Contains(out, "status_code=404") || !strings.Contains(out, "level=WARN") {
		t.Errorf("completion log missing status or level: %s", out)
	}
	if got := testutil.ToFloat64(reg.HTTPRequests.WithLabelValues("GET", "/api/things/{id}", "404")); got != 1 {
		t.Errorf("request counter = %v, want 1", got)
	}
}

func TestHandler_KeepsValidIncomingID(t *testing.T) {
	const id = "3f2c1f0e-4a5b-4c6d-8e9f-0a1b2c3d4e5f"
	h := NewMiddleware(nil, nil, nil, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, id)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != id {
		t.Errorf("request id = %q, want %q", got, id)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "not a uuid\n")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got == "not a uuid\n" || got == "" {
		t.Errorf("invalid incoming id should be replaced, got %q", got)
	}
}
