// Package alert decides when a user has crossed a budget threshold.
//
// The evaluator is pure: it reads a transaction set and the thresholds
// already announced, and returns at most one new threshold to announce.
// Persisting that threshold and delivering the notification belong to the
// caller (see services.AlertService).
package alert

import (
	"sort"

	"github.com/shopspring/decimal"

	"spendyze/internal/core"
)

// Threshold is a spending level expressed as a percentage of income.
type Threshold int

// Thresholds is the static break-point table, scanned highest first.
var Thresholds = []Threshold{100, 90}

// Reasons attached to NoAlert decisions.
const (
	ReasonNoIncome    = "no income to evaluate against"
	ReasonNoneCrossed = "no new thresholds crossed"
)

// Kind tells the caller what to do with a Decision.
type Kind string

const (
	NoAlert   Kind = "no_alert"
	FireAlert Kind = "fire_alert"
)

// Totals holds income and expenses of one evaluation.
type Totals struct {
	Income   core.Money
	Expenses core.Money
}

// Usage returns expenses as a percentage of income. ok is false when there
// is no income.
func (t Totals) Usage() (pct decimal.Decimal, ok bool) {
	if t.Income.Cents <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(t.Expenses.Cents).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(t.Income.Cents)), true
}

// Reached reports whether usage is at or above th, without rounding.
func (t Totals) Reached(th Threshold) bool {
	if t.Income.Cents <= 0 {
		return false
	}
	lhs := decimal.NewFromInt(t.Expenses.Cents).Mul(decimal.NewFromInt(100))
	rhs := decimal.NewFromInt(int64(th)).Mul(decimal.NewFromInt(t.Income.Cents))
	return lhs.GreaterThanOrEqual(rhs)
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Kind      Kind
	Threshold Threshold
	Totals    Totals
	Reason    string
}

// NotifiedSet is the set of thresholds already announced in the current cycle.
type NotifiedSet map[Threshold]struct{}

// NewNotifiedSet builds a set from stored values.
func NewNotifiedSet(values ...int) NotifiedSet {
	s := make(NotifiedSet, len(values))
	for _, v := range values {
		s[Threshold(v)] = struct{}{}
	}
	return s
}

func (s NotifiedSet) Has(t Threshold) bool {
	_, ok := s[t]
	return ok
}

// Sorted returns the thresholds in ascending order.
func (s NotifiedSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for t := range s {
		out = append(out, int(t))
	}
	sort.Ints(out)
	return out
}

// Summarize sums income and expenses. Any type other than Income counts as
// an expense.
func Summarize(txs []core.Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		if tx.Type.IsIncome() {
			t.Income = t.Income.Add(tx.Amount)
		} else {
			t.Expenses = t.Expenses.Add(tx.Amount)
		}
	}
	return t
}

// Evaluate returns FireAlert for the highest threshold that usage has reached
// and that is not in notified, or NoAlert otherwise.
//
// Thresholds are independent: with 100 already announced and usage at 150%,
// 90 is still reported on the next call.
func Evaluate(txs []core.Transaction, notified NotifiedSet) Decision {
	totals := Summarize(txs)
	if totals.Income.Cents == 0 {
		return Decision{Kind: NoAlert, Totals: totals, Reason: ReasonNoIncome}
	}
	for _, th := range Thresholds {
		if totals.Reached(th) && !notified.Has(th) {
			return Decision{Kind: FireAlert, Threshold: th, Totals: totals}
		}
	}
	return Decision{Kind: NoAlert, Totals: totals, Reason: ReasonNoneCrossed}
}
