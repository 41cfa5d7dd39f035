// Package ai produces financial summaries, extracts bills from images and
// answers questions about a user's transactions.
//
// A Client turns those tasks into prompts for a Model (Gemini or OpenAI).
// Offline answers the same questions without a network model.
package ai

import (
	"context"
	"errors"
	"strings"

	"spendyze/internal/core"
)

var (
	// ErrInvalidHistory is returned when a chat history is empty or does not
	// end with a user message.
	ErrInvalidHistory = errors.New("invalid chat history format")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrUnavailable is returned while the provider circuit is open.
	ErrUnavailable = errors.New("ai provider unavailable")
	// ErrNotSupported is returned by providers that cannot perform a task.
	ErrNotSupported = errors.New("not supported by ai provider")
)

// Summary is a short structured review of a user's finances.
type Summary struct {
	Overview   string `json:"overview"`
	Positive   string `json:"positive"`
	Suggestion string `json:"suggestion"`
}

// IsZero reports whether no field was filled.
func (s Summary) IsZero() bool {
	return s.Overview == "" && s.Positive == "" && s.Suggestion == ""
}

// Text joins the non-empty fields into one paragraph.
func (s Summary) Text() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{s.Overview, s.Positive, s.Suggestion} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ScannedBill is what the scanner could read from a receipt. It is always an
// expense and is meant to prefill a form, so fields may be zero.
type ScannedBill struct {
	Title    string               `json:"title"`
	Amount   core.Money           `json:"amount"`
	Category string               `json:"category"`
	Date     core.Date            `json:"date"`
	Type     core.TransactionType `json:"type"`
}

// ChatMessage is one line of the assistant conversation.
type ChatMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// SenderUser marks messages typed by the user; anything else is the assistant.
const SenderUser = "user"

type (
	Summarizer interface {
		// Summarize reviews txs. purpose is a short phrase such as "for an email alert".
		Summarize(ctx context.Context, txs []core.Transaction, purpose string) (Summary, error)
	}

	BillScanner interface {
		ScanBill(ctx context.Context, image []byte, mimeType string) (ScannedBill, error)
	}

	Assistant interface {
		Chat(ctx context.Context, history []ChatMessage, txs []core.Transaction) (string, error)
	}

	// Service bundles every AI capability the HTTP layer exposes.
	Service interface {
		Summarizer
		BillScanner
		Assistant
	}
)

// validateHistory checks that history ends with a user turn.
func validateHistory(history []ChatMessage) error {
	if len(history) == 0 || history[len(history)-1].Sender != SenderUser {
		return ErrInvalidHistory
	}
	if strings.TrimSpace(history[len(history)-1].Text) == "" {
		return ErrInvalidHistory
	}
	return nil
}
