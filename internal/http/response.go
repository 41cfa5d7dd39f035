package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"spendyze/internal/ai"
	"spendyze/internal/alert"
	"spendyze/internal/core"
	"spendyze/internal/ledger"
	"spendyze/internal/log"
)

type errorBody struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", log.FieldError, err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Message: msg})
}

// validationErrors are reported to the client verbatim.
var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrInvalidType,
	core.ErrEmptyTitle,
	core.ErrTitleTooLong,
	core.ErrEmptyCategory,
	core.ErrEmptyUser,
	core.ErrZeroDate,
	core.ErrInvalidDay,
	core.ErrInvalidMonth,
	ai.ErrInvalidHistory,
}

// writeError maps err to a status and body. fallback is the message used for
// unexpected failures, which are logged and never leaked.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, op, fallback string) {
	status := http.StatusInternalServerError
	body := errorBody{Message: fallback}

	var alertErr *alert.Error
	switch {
	case errors.As(err, &alertErr):
		status = http.StatusServiceUnavailable
		body = errorBody{Kind: string(alertErr.Kind), Message: alertErr.Message}
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
		body.Message = "Transaction not found"
	case isValidation(err):
		status = http.StatusBadRequest
		body.Message = err.Error()
	case errors.Is(err, ai.ErrUnavailable), errors.Is(err, ai.ErrNotSupported):
		status = http.StatusServiceUnavailable
	}

	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.LogError(r.Context(), logger, fallback, err, op, log.NewFields())
	} else {
		logger.DebugContext(r.Context(), "Request rejected", log.FieldOperation, op, log.FieldError, err)
	}
	writeJSON(w, status, body)
}

func isValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
