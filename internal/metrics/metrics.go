// Package metrics exposes Prometheus collectors for the alert pipeline and
// the HTTP API.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector. Each Registry owns its own
// prometheus.Registry so tests can create as many as they like.
type Registry struct {
	reg *prometheus.Registry

	AlertDecisions   *prometheus.CounterVec
	AlertDispatches  *prometheus.CounterVec
	AlertErrors      *prometheus.CounterVec
	OutboxDepth      *prometheus.GaugeVec
	AICalls          *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	AlertChecksQueue prometheus.Counter
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		AlertDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spendyze_alert_decisions_total",
			Help: "Budget evaluations by decision and threshold",
		}, []string{"decision", "threshold"}),
		AlertDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spendyze_alert_dispatches_total",
			Help: "Alert delivery attempts by result",
		}, []string{"result"}),
		AlertErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spendyze_alert_errors_total",
			Help: "Alert check failures by kind",
		}, []string{"kind"}),
		OutboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spendyze_alert_outbox_entries",
			Help: "Alert outbox entries by status",
		}, []string{"status"}),
		AICalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spendyze_ai_calls_total",
			Help: "AI provider calls by operation and result",
		}, []string{"operation", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spendyze_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spendyze_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		AlertChecksQueue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spendyze_alert_checks_published_total",
			Help: "Alert check requests published to the broker",
		}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.AlertDecisions,
		r.AlertDispatches,
		r.AlertErrors,
		r.OutboxDepth,
		r.AICalls,
		r.HTTPRequests,
		r.HTTPDuration,
		r.AlertChecksQueue,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveDecision counts one evaluation. threshold is 0 for NoAlert.
func (r *Registry) ObserveDecision(decision string, threshold int) {
	if r == nil {
		return
	}
	r.AlertDecisions.WithLabelValues(decision, strconv.Itoa(threshold)).Inc()
}

func (r *Registry) ObserveDispatch(err error) {
	if r == nil {
		return
	}
	r.AlertDispatches.WithLabelValues(result(err)).Inc()
}

func (r *Registry) ObserveAlertError(kind string) {
	if r == nil {
		return
	}
	r.AlertErrors.WithLabelValues(kind).Inc()
}

func (r *Registry) ObserveAI(op string, err error) {
	if r == nil {
		return
	}
	r.AICalls.WithLabelValues(op, result(err)).Inc()
}

func (r *Registry) ObservePublish() {
	if r == nil {
		return
	}
	r.AlertChecksQueue.Inc()
}

func (r *Registry) ObserveHTTP(method, route string, code int, d time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	r.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// SetOutbox records outbox depth by status.
func (r *Registry) SetOutbox(pending, processing, completed, failed int64) {
	if r == nil {
		return
	}
	r.OutboxDepth.WithLabelValues("pending").Set(float64(pending))
	r.OutboxDepth.WithLabelValues("processing").Set(float64(processing))
	r.OutboxDepth.WithLabelValues("completed").Set(float64(completed))
	r.OutboxDepth.WithLabelValues("failed").Set(float64(failed))
}

func result(err error) string {
	switch {
	case err == nil:
		return "success"
	case err == context.Canceled || err == context.DeadlineExceeded:
		return "timeout"
	default:
		return "error"
	}
}
