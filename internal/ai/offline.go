package ai

import (
	"context"
	"fmt"

	"spendyze/internal/core"
)

// Offline answers from the numbers alone. It is used when no provider is
// configured and cannot read images.
type Offline struct{}

var _ Service = Offline{}

func (Offline) Summarize(_ context.Context, txs []core.Transaction, _ string) (Summary, error) {
	o := core.Summarize(txs)
	s := Summary{
		Overview: fmt.Sprintf("You recorded %d transactions with %s of income and %s of expenses.",
			o.Count, core.FormatINR(o.Income), core.FormatINR(o.Expenses)),
	}
	if o.Balance.Cents >= 0 {
		s.Positive = fmt.Sprintf("You kept %s more than you spent.", core.FormatINR(o.Balance))
	} else {
		s.Positive = "Every transaction is tracked, which makes it easy to find savings."
	}
	if len(o.ByCategory) > 0 {
		top := o.ByCategory[0]
		s.Suggestion = fmt.Sprintf("%s is your largest expense at %s; consider setting a limit for it.",
			top.Name, core.FormatINR(top.Amount))
	} else {
		s.Suggestion = "Add your expenses to see where your money goes."
	}
	return s, nil
}

func (Offline) ScanBill(context.Context, []byte, string) (ScannedBill, error) {
	return ScannedBill{}, fmt.Errorf("scan bill: %w", ErrNotSupported)
}

func (o Offline) Chat(ctx context.Context, history []ChatMessage, txs []core.Transaction) (string, error) {
	if err := validateHistory(history); err != nil {
		return "", err
	}
	s, _ := o.Summarize(ctx, txs, "")
	return s.Overview + " Configure an AI provider for detailed answers.", nil
}
