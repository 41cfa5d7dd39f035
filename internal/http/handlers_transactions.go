package http

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"spendyze/internal/ledger"
	"spendyze/internal/log"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	txs, err := s.deps.Transactions.List(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err, log.OpList, "Failed to load transactions.")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in transactionInput
	if err := decodeJSON(r, &in); err != nil {
		writeDecodeError(w, err)
		return
	}
	tx, err := in.toTransaction()
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.deps.Transactions.Create(r.Context(), userFrom(r.Context()), tx)
	if err != nil {
		s.writeError(w, r, err, log.OpCreate, "Failed to add transaction.")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in transactionInput
	if err := decodeJSON(r, &in); err != nil {
		writeDecodeError(w, err)
		return
	}
	tx, err := in.toTransaction()
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Please provide all required fields for the update.")
		return
	}

	updated, err := s.deps.Transactions.Update(r.Context(), userFrom(r.Context()).ID, id, tx)
	if errors.Is(err, ledger.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Transaction not found or user not authorized")
		return
	}
	if err != nil {
		s.writeError(w, r, err, log.OpUpdate, "Failed to update transaction.")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Transactions.Delete(r.Context(), userFrom(r.Context()).ID, id); err != nil {
		s.writeError(w, r, err, log.OpDelete, "Failed to delete transaction.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// handleCheckAlerts runs the budget check synchronously. Every decision,
// including "nothing to send", is a 200 with a message.
func (s *Server) handleCheckAlerts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		writeMessage(w, http.StatusServiceUnavailable, "Alerts are not configured.")
		return
	}
	res, err := s.deps.Alerts.CheckBudgetAlerts(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err, log.OpEvaluate, "Failed to check budget alerts.")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Transactions.Dashboard(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err, log.OpRead, "Failed to load dashboard.")
		return
	}
	writeJSON(w, http.StatusOK, d)
}
