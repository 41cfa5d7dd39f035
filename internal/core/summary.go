package core

import "sort"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// Overview is the dashboard aggregate over a set of transactions.
type Overview struct {
	Income     Money            `json:"totalIncome"`
	Expenses   Money            `json:"totalExpenses"`
	Balance    Money            `json:"balance"`
	Count      int              `json:"count"`
	ByCategory []CategoryAmount `json:"expensesByCategory"`
}

// Summarize aggregates transactions for the dashboard. Expense categories are
// sorted by amount, largest first.
func Summarize(txs []Transaction) Overview {
	var o Overview
	byCat := map[string]int64{}
	for _, t := range txs {
		o.Count++
		if t.Type.IsIncome() {
			o.Income.Cents += t.Amount.Cents
			continue
		}
		o.Expenses.Cents += t.Amount.Cents
		byCat[t.Category] += t.Amount.Cents
	}
	o.Balance = Money{Cents: o.Income.Cents - o.Expenses.Cents}
	for name, cents := range byCat {
		o.ByCategory = append(o.ByCategory, CategoryAmount{Name: name, Amount: Money{Cents: cents}})
	}
	sort.Slice(o.ByCategory, func(i, j int) bool {
		if o.ByCategory[i].Amount.Cents == o.ByCategory[j].Amount.Cents {
			return o.ByCategory[i].Name < o.ByCategory[j].Name
		}
		return o.ByCategory[i].Amount.Cents > o.ByCategory[j].Amount.Cents
	})
	return o
}
