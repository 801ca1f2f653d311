// Package export renders a dashboard snapshot as an xlsx workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"expensedash/internal/chart"
	"expensedash/internal/store"
)

const (
	SheetExpenses = "Expenses"
	SheetSummary  = "Summary"
	SheetCharts   = "Charts"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	dateLayout  = "2006-01-02 15:04"
	moneyFormat = "#,##0.00"
)

// WriteXLSX writes one sheet per section of v: the expense list, the
// summary figures and the chart series.
func WriteXLSX(w io.Writer, v store.View) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetExpenses); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetSummary, SheetCharts} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	if err := writeExpenses(f, styles, v); err != nil {
		return err
	}
	if err := writeSummary(f, styles, v); err != nil {
		return err
	}
	if err := writeCharts(f, styles, v.Charts); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

type styles struct {
	header int
	money  int
}

func newStyles(f *excelize.File) (styles, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return styles{}, fmt.Errorf("header style: %w", err)
	}
	format := moneyFormat
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: &format})
	if err != nil {
		return styles{}, fmt.Errorf("money style: %w", err)
	}
	return styles{header: header, money: money}, nil
}

func writeHeader(f *excelize.File, st styles, sheet string, headers ...string) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	return f.SetCellStyle(sheet, "A1", last, st.header)
}

func writeExpenses(f *excelize.File, st styles, v store.View) error {
	if err := writeHeader(f, st, SheetExpenses, "ID", "Name", "Category", "Amount", "Created"); err != nil {
		return fmt.Errorf("expenses header: %w", err)
	}
	_ = f.SetColWidth(SheetExpenses, "B", "B", 30)
	_ = f.SetColWidth(SheetExpenses, "C", "C", 15)
	_ = f.SetColWidth(SheetExpenses, "E", "E", 18)

	for i, e := range v.Expenses {
		row := i + 2
		created := ""
		if !e.CreatedAt.IsZero() {
			created = e.CreatedAt.Format(dateLayout)
		}
		values := []any{e.ID, e.Name, string(e.Category), e.Amount.InexactFloat64(), created}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetExpenses, cell, &values); err != nil {
			return fmt.Errorf("expense row %d: %w", row, err)
		}
	}
	if n := len(v.Expenses); n > 0 {
		if err := f.SetCellStyle(SheetExpenses, "D2", fmt.Sprintf("D%d", n+1), st.money); err != nil {
			return fmt.Errorf("amount style: %w", err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, st styles, v store.View) error {
	if err := writeHeader(f, st, SheetSummary, "Metric", "Value"); err != nil {
		return fmt.Errorf("summary header: %w", err)
	}
	rows := [][]any{
		{"Monthly income", v.Income.InexactFloat64()},
		{"Total expenses", v.Total.InexactFloat64()},
		{"Remaining", v.Remaining.InexactFloat64()},
		{"Expenses", v.Count},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetSummary, cell, &r); err != nil {
			return fmt.Errorf("summary row: %w", err)
		}
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 18)
	return f.SetCellStyle(SheetSummary, "B2", "B4", st.money)
}

func writeCharts(f *excelize.File, st styles, set chart.Set) error {
	if err := writeHeader(f, st, SheetCharts, "Chart", "Label", "Value"); err != nil {
		return fmt.Errorf("charts header: %w", err)
	}
	row := 2
	for _, k := range chart.Kinds {
		for _, p := range set.Get(k) {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			values := []any{string(k), p.Label, p.Value.InexactFloat64()}
			if err := f.SetSheetRow(SheetCharts, cell, &values); err != nil {
				return fmt.Errorf("chart row %d: %w", row, err)
			}
			row++
		}
	}
	return nil
}
