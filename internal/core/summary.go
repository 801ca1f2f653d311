package core

import "github.com/shopspring/decimal"

// Summary holds the aggregates shown on the dashboard.
type Summary struct {
	Income    decimal.Decimal
	Total     decimal.Decimal
	Remaining decimal.Decimal // negative when spending exceeds income
	Count     int
}

// Summarize recomputes the aggregates from the full collection.
func Summarize(expenses []Expense, income decimal.Decimal) Summary {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return Summary{
		Income:    income,
		Total:     total,
		Remaining: income.Sub(total),
		Count:     len(expenses),
	}
}
