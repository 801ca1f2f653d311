package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"expensedash/internal/chart"
	"expensedash/internal/core"
	"expensedash/internal/store"
)

func TestWriteXLSX(t *testing.T) {
	expenses := []core.Expense{
		{ID: 1, Name: "Coffee", Amount: decimal.RequireFromString("4.5"), Category: core.Food,
			CreatedAt: time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)},
		{ID: 2, Name: "Bus", Amount: decimal.NewFromInt(2), Category: core.Transport},
	}
	v := store.View{
		Expenses: expenses,
		Summary:  core.Summarize(expenses, decimal.NewFromInt(3000)),
		Charts:   chart.Build(expenses, time.Now()),
		Loaded:   true,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, v))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetExpenses, SheetSummary, SheetCharts}, f.GetSheetList())

	rows, err := f.GetRows(SheetExpenses)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ID", "Name", "Category", "Amount", "Created"}, rows[0])
	assert.Equal(t, "Coffee", rows[1][1])
	assert.Equal(t, "2025-03-02 09:30", rows[1][4])
	assert.Equal(t, "Transport", rows[2][2])

	remaining, err := f.GetCellValue(SheetSummary, "B4", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "2993.5", remaining)

	chartRows, err := f.GetRows(SheetCharts)
	require.NoError(t, err)
	// header, two area points, one bar point, one line point
	assert.Len(t, chartRows, 5)
	assert.Equal(t, []string{"area", "Food", "4.5"}, chartRows[1])
}

func TestWriteXLSXEmpty(t *testing.T) {
	v := store.View{Summary: core.Summarize(nil, core.DefaultIncome), Charts: chart.Build(nil, time.Now())}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, v))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetExpenses)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
