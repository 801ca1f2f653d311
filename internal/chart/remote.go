package chart

import (
	"github.com/shopspring/decimal"

	"expensedash/internal/core"
)

// RemoteCategory is one entry of the backend's area chart.
type RemoteCategory struct {
	Category string
	Value    decimal.Decimal
}

// Remote is the chart payload computed by the backend: category totals,
// daily totals for the current month and monthly totals for the last year.
type Remote struct {
	Area []RemoteCategory
	Bar  []decimal.Decimal
	Line []decimal.Decimal
}

// FromRemote converts backend chart data into a Set with the same labels
// Build produces. Unknown categories are folded into Other.
func FromRemote(r Remote) Set {
	byCategory := make(map[core.Category]decimal.Decimal, len(r.Area))
	for _, rc := range r.Area {
		c := core.CoerceCategory(rc.Category)
		byCategory[c] = byCategory[c].Add(rc.Value)
	}

	set := Set{Area: Series{}}
	for _, c := range core.Categories {
		if v, ok := byCategory[c]; ok && !v.IsZero() {
			set.Area = append(set.Area, Point{Label: string(c), Value: v})
		}
	}
	set.Bar = buckets(r.Bar, dayLabel)
	set.Line = buckets(r.Line, monthLabel)
	return set
}
