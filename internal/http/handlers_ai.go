package http

import (
	"net/http"
	"strings"

	"spendyze/internal/ai"
	"spendyze/internal/log"
)

const (
	summaryTxLimit = 30
	chatTxLimit    = 50

	msgNoSummaryData = "Not enough data for a summary. Add some transactions first!"
)

func (s *Server) handleAISummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFrom(ctx)
	txs, err := s.deps.Transactions.Recent(ctx, user.ID, summaryTxLimit)
	if err != nil {
		s.writeError(w, r, err, log.OpSummarize, "Failed to generate AI summary.")
		return
	}
	if len(txs) == 0 {
		writeJSON(w, http.StatusOK, map[string]ai.Summary{"summary": {Overview: msgNoSummaryData}})
		return
	}

	summary, err := s.deps.AI.Summarize(ctx, txs, "for the dashboard")
	s.deps.Metrics.ObserveAI(log.OpSummarize, err)
	if err != nil {
		s.writeError(w, r, err, log.OpSummarize, "Failed to generate AI summary.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]ai.Summary{"summary": summary})
}

func (s *Server) handleAIScan(w http.ResponseWriter, r *http.Request) {
	var in scanInput
	if err := decodeJSON(r, &in); err != nil {
		writeDecodeError(w, err)
		return
	}
	if strings.TrimSpace(in.Image) == "" {
		writeMessage(w, http.StatusBadRequest, "No image data provided.")
		return
	}
	img, mime, err := decodeImage(in)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Image must be base64 encoded.")
		return
	}

	bill, err := s.deps.AI.ScanBill(r.Context(), img, mime)
	s.deps.Metrics.ObserveAI(log.OpScan, err)
	if err != nil {
		s.writeError(w, r, err, log.OpScan, "Failed to analyze the bill with AI.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]ai.ScannedBill{"scannedData": bill})
}

type chatInput struct {
	History []ai.ChatMessage `json:"history"`
}

func (s *Server) handleAIChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in chatInput
	if err := decodeJSON(r, &in); err != nil {
		writeDecodeError(w, err)
		return
	}
	if len(in.History) == 0 {
		writeMessage(w, http.StatusBadRequest, "No chat history provided.")
		return
	}

	txs, err := s.deps.Transactions.Recent(ctx, userFrom(ctx).ID, chatTxLimit)
	if err != nil {
		s.writeError(w, r, err, log.OpChat, "Failed to get a response from the chatbot.")
		return
	}
	text, err := s.deps.AI.Chat(ctx, in.History, txs)
	s.deps.Metrics.ObserveAI(log.OpChat, err)
	if err != nil {
		s.writeError(w, r, err, log.OpChat, "Failed to get a response from the chatbot.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
