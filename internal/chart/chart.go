// Package chart turns expense collections into the label/value series drawn
// by the dashboard charts.
package chart

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"expensedash/internal/core"
)

// Kind identifies one of the dashboard charts.
type Kind string

const (
	Area Kind = "area"
	Bar  Kind = "bar"
	Line Kind = "line"
)

// Kinds lists the charts in display order.
var Kinds = []Kind{Area, Bar, Line}

// ParseKind returns the chart kind named s.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case Area, Bar, Line:
		return k, true
	}
	return "", false
}

// Title is the heading shown above the chart.
func (k Kind) Title() string {
	switch k {
	case Area:
		return "Spending by category"
	case Bar:
		return "Daily spending"
	case Line:
		return "Monthly spending"
	}
	return string(k)
}

type Point struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

// Series is ordered; renderers draw points in slice order.
type Series []Point

func (s Series) Labels() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.Label
	}
	return out
}

func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value.InexactFloat64()
	}
	return out
}

// Set holds one series per chart kind.
type Set struct {
	Area Series `json:"area"`
	Bar  Series `json:"bar"`
	Line Series `json:"line"`
}

// Get returns the series for kind k.
func (s Set) Get(k Kind) Series {
	switch k {
	case Area:
		return s.Area
	case Bar:
		return s.Bar
	case Line:
		return s.Line
	}
	return nil
}

// Build derives all three series from expenses as of now.
//
// Area totals amounts per category in category order. Bar totals the days of
// now's month (days past the 30th are not charted) and Line the months of the
// last 365 days by month of year, both keyed on CreatedAt; records without a
// creation time only count towards Area. Empty buckets are omitted and an
// empty input yields empty, non-nil series.
func Build(expenses []core.Expense, now time.Time) Set {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	yearAgo := now.AddDate(0, 0, -365)

	byCategory := make(map[core.Category]decimal.Decimal)
	var byDay [barDays]decimal.Decimal
	var byMonth [12]decimal.Decimal

	for _, e := range expenses {
		byCategory[e.Category] = byCategory[e.Category].Add(e.Amount)
		if e.CreatedAt.IsZero() {
			continue
		}
		if !e.CreatedAt.Before(monthStart) && e.CreatedAt.Day() <= barDays {
			byDay[e.CreatedAt.Day()-1] = byDay[e.CreatedAt.Day()-1].Add(e.Amount)
		}
		if !e.CreatedAt.Before(yearAgo) {
			byMonth[e.CreatedAt.Month()-1] = byMonth[e.CreatedAt.Month()-1].Add(e.Amount)
		}
	}

	set := Set{Area: Series{}, Bar: Series{}, Line: Series{}}
	for _, c := range core.Categories {
		if v, ok := byCategory[c]; ok && !v.IsZero() {
			set.Area = append(set.Area, Point{Label: string(c), Value: v})
		}
	}
	set.Bar = buckets(byDay[:], dayLabel)
	set.Line = buckets(byMonth[:], monthLabel)
	return set
}

// barDays matches the length of the backend's daily series.
const barDays = 30

func buckets(values []decimal.Decimal, label func(int) string) Series {
	out := Series{}
	for i, v := range values {
		if v.IsZero() {
			continue
		}
		out = append(out, Point{Label: label(i), Value: v})
	}
	return out
}

func dayLabel(i int) string { return strconv.Itoa(i + 1) }

func monthLabel(i int) string { return time.Month(i + 1).String()[:3] }
