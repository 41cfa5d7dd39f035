package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"spendyze/internal/core"
)

const summaryPrompt = `Based on the following JSON transaction data, provide a structured financial summary %s.
Return your response strictly in valid JSON format with the following fields:
{
  "overview": "2-3 sentence summary of overall financial activity.",
  "positive": "Highlight one positive financial trend.",
  "suggestion": "Suggest one area for improvement."
}

Be concise and encouraging. All monetary values should be presented using the Indian Rupee symbol (₹).

Transactions:
%s`

const scanPrompt = `Analyze this receipt or bill. Extract the total amount, suggest a relevant title (e.g., vendor name), determine the most likely expense category, and find the transaction date.
Respond with a JSON object with the fields "title", "amount" (a number), "category" (one of %s) and "date" (YYYY-MM-DD; use %s if the bill has no date).`

const chatSystemPrompt = `You are a friendly and helpful financial assistant named Fin.
Analyze the user's financial data to answer their questions. The user's recent transactions are provided below in JSON format.
Base your answers SOLELY on this data. Do not make up information. If you don't know the answer, say so.
Be concise and clear in your responses. When mentioning any monetary value, you MUST use the Indian Rupee symbol (₹), for example ₹500.
Current date is %s.

TRANSACTION DATA:
%s`

// promptTransaction is the shape transactions take inside prompts.
type promptTransaction struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

func transactionsJSON(txs []core.Transaction) string {
	out := make([]promptTransaction, len(txs))
	for i, t := range txs {
		out[i] = promptTransaction{
			Type:        string(t.Type),
			Title:       t.Title,
			Amount:      t.Amount.String(),
			Date:        t.Date.String(),
			Category:    t.Category,
			Description: t.Description,
		}
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}

func buildSummaryRequest(txs []core.Transaction, purpose string) Request {
	return Request{
		Turns: []Turn{{Role: RoleUser, Text: fmt.Sprintf(summaryPrompt, purpose, transactionsJSON(txs))}},
		JSON:  true,
		Schema: &Schema{
			Type: "OBJECT",
			Properties: map[string]*Schema{
				"overview":   {Type: "STRING"},
				"positive":   {Type: "STRING"},
				"suggestion": {Type: "STRING"},
			},
			Required: []string{"overview", "positive", "suggestion"},
		},
	}
}

var billSchema = &Schema{
	Type: "OBJECT",
	Properties: map[string]*Schema{
		"title":    {Type: "STRING", Description: "A short, relevant title for the transaction, like the merchant's name."},
		"amount":   {Type: "NUMBER", Description: "The total amount of the transaction."},
		"category": {Type: "STRING", Description: "The most likely expense category from the provided list.", Enum: core.ExpenseCategories},
		"date":     {Type: "STRING", Description: "The date of the transaction in YYYY-MM-DD format."},
	},
	Required: []string{"title", "amount", "category", "date"},
}

func buildScanRequest(image []byte, mimeType string, today time.Time) Request {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return Request{
		Turns:  []Turn{{Role: RoleUser, Text: fmt.Sprintf(scanPrompt, strings.Join(core.ExpenseCategories, ", "), today.Format("2006-01-02"))}},
		Image:  &Image{Data: image, MIMEType: mimeType},
		JSON:   true,
		Schema: billSchema,
	}
}

func buildChatRequest(history []ChatMessage, txs []core.Transaction, today time.Time) Request {
	turns := make([]Turn, len(history))
	for i, m := range history {
		role := RoleModel
		if m.Sender == SenderUser {
			role = RoleUser
		}
		turns[i] = Turn{Role: role, Text: m.Text}
	}
	return Request{
		System: fmt.Sprintf(chatSystemPrompt, today.Format("Mon Jan 02 2006"), transactionsJSON(txs)),
		Turns:  turns,
	}
}

// cleanJSON strips markdown fences some models wrap around JSON.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
