package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendyze/internal/cache"
	"spendyze/internal/core"
	"spendyze/internal/log"
)

// Client implements Service on top of a Model.
type Client struct {
	model  Model
	cache  *cache.LRUCache[Summary]
	logger *log.Logger
	now    func() time.Time
}

var _ Service = (*Client)(nil)

// NewClient wraps model. A nil summaries cache disables caching.
func NewClient(model Model, summaries *cache.LRUCache[Summary], logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Client{
		model:  model,
		cache:  summaries,
		logger: logger.WithComponent(log.ComponentAI).With(log.FieldProvider, model.Name()),
		now:    time.Now,
	}
}

func summaryKey(txs []core.Transaction, purpose string) string {
	h := sha256.New()
	h.Write([]byte(purpose))
	h.Write([]byte{0})
	h.Write([]byte(transactionsJSON(txs)))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) Summarize(ctx context.Context, txs []core.Transaction, purpose string) (Summary, error) {
	key := summaryKey(txs, purpose)
	if c.cache != nil {
		if s, ok := c.cache.Get(key); ok {
			return s, nil
		}
	}

	start := c.now()
	raw, err := c.model.Generate(ctx, buildSummaryRequest(txs, purpose))
	if err != nil {
		return Summary{}, fmt.Errorf("generate summary: %w", err)
	}

	var s Summary
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &s); err != nil {
		return Summary{}, fmt.Errorf("parse summary: %w", err)
	}
	if s.IsZero() {
		return Summary{}, ErrEmptyResponse
	}

	if c.cache != nil {
		c.cache.Set(key, s)
	}
	c.logger.InfoContext(ctx, "Summary generated",
		log.FieldOperation, log.OpSummarize,
		"transactions", len(txs),
		log.FieldDuration, c.now().Sub(start).Milliseconds())
	return s, nil
}

type rawBill struct {
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Date     string          `json:"date"`
}

func (c *Client) ScanBill(ctx context.Context, image []byte, mimeType string) (ScannedBill, error) {
	today := c.now()
	raw, err := c.model.Generate(ctx, buildScanRequest(image, mimeType, today))
	if err != nil {
		return ScannedBill{}, fmt.Errorf("scan bill: %w", err)
	}

	var rb rawBill
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &rb); err != nil {
		return ScannedBill{}, fmt.Errorf("parse scanned bill: %w", err)
	}

	bill := ScannedBill{
		Title:    strings.TrimSpace(rb.Title),
		Category: rb.Category,
		Type:     core.Expense,
	}
	if !core.IsExpenseCategory(bill.Category) {
		bill.Category = "Other"
	}
	// Unreadable amounts are left at zero for the user to fill in.
	if m, err := core.MoneyFromDecimal(rb.Amount); err == nil {
		bill.Amount = m
	}
	if d, err := core.ParseDate(rb.Date); err == nil {
		bill.Date = d
	} else {
		bill.Date = core.NewDate(today.Year(), int(today.Month()), today.Day())
	}

	c.logger.InfoContext(ctx, "Bill scanned",
		log.FieldOperation, log.OpScan,
		log.FieldAmountCents, bill.Amount.Cents,
		log.FieldCategory, bill.Category)
	return bill, nil
}

func (c *Client) Chat(ctx context.Context, history []ChatMessage, txs []core.Transaction) (string, error) {
	if err := validateHistory(history); err != nil {
		return "", err
	}
	text, err := c.model.Generate(ctx, buildChatRequest(history, txs, c.now()))
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
