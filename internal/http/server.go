// Package http exposes the REST API over gorilla/mux.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"spendyze/internal/ai"
	"spendyze/internal/log"
	"spendyze/internal/metrics"
	"spendyze/internal/middleware/ratelimit"
	"spendyze/internal/middleware/security"
	"spendyze/internal/middleware/trace"
	"spendyze/internal/services"
)

// maxBodyBytes bounds request bodies; bill images are the largest payload.
const maxBodyBytes = 10 << 20

// Pinger is a dependency readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Transactions *services.TransactionService
	Alerts       services.AlertChecker
	AI           ai.Service
	Metrics      *metrics.Registry
	Logger       *log.Logger
	// Ready lists probes checked by /readyz, keyed by name.
	Ready map[string]Pinger
}

// Options tune the outer middleware.
type Options struct {
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server
	deps    Deps
	logger  *log.Logger
	limiter *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      90 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		deps:    deps,
		logger:  deps.Logger.WithComponent(log.ComponentHTTP),
		limiter: ratelimit.NewLimiter(opts.RateLimit),
	}
	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	clientIP := security.NewClientIP()
	tracer := trace.NewMiddleware(s.deps.Logger, clientIP.Extract, routeTemplate, s.deps.Metrics)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.Use(tracer.Handler, security.Headers(security.DefaultHeadersConfig()))

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(
		limitBody,
		s.limiter.Middleware(clientIP.Extract, ratelimit.Mutating, func(w http.ResponseWriter, r *http.Request) {
			writeMessage(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
		}),
		requireUser,
	)

	tx := api.PathPrefix("/transactions").Subrouter()
	tx.HandleFunc("", s.handleListTransactions).Methods(http.MethodGet)
	tx.HandleFunc("", s.handleCreateTransaction).Methods(http.MethodPost)
	// Registered before {id} so it is not captured as an id.
	tx.HandleFunc("/check-alerts", s.handleCheckAlerts).Methods(http.MethodPost)
	tx.HandleFunc("/{id}", s.handleUpdateTransaction).Methods(http.MethodPut)
	tx.HandleFunc("/{id}", s.handleDeleteTransaction).Methods(http.MethodDelete)

	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)

	aiRouter := api.PathPrefix("/ai").Subrouter()
	aiRouter.HandleFunc("/summary", s.handleAISummary).Methods(http.MethodGet)
	aiRouter.HandleFunc("/scan", s.handleAIScan).Methods(http.MethodPost)
	aiRouter.HandleFunc("/chat", s.handleAIChat).Methods(http.MethodPost)

	return r
}

// routeTemplate names the matched route so metrics labels stay bounded.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tpl
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops background work and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, p := range s.deps.Ready {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.WarnContext(ctx, "Readiness check failed", "failed", failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
