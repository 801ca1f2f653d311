package client

import (
	"context"
	"fmt"
	"net/http"
	"reflect"

	"github.com/shopspring/decimal"

	"expensedash/internal/chart"
	"expensedash/internal/core"
)

const (
	pathExpenses = "/api/expenses"
	pathIncome   = "/api/monthly-income"
	pathCharts   = "/api/chart-data"
)

func (c *Client) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	var dtos []expenseDTO
	if err := c.call(ctx, http.MethodGet, pathExpenses, nil, &dtos, "dive"); err != nil {
		return nil, err
	}
	out := make([]core.Expense, len(dtos))
	for i, d := range dtos {
		out[i] = d.expense()
	}
	return out, nil
}

// CreateExpense submits d and returns the record with its assigned id.
func (c *Client) CreateExpense(ctx context.Context, d core.Draft) (core.Expense, error) {
	var dto expenseDTO
	if err := c.call(ctx, http.MethodPost, pathExpenses, toDraftDTO(d), &dto, ""); err != nil {
		return core.Expense{}, err
	}
	return dto.expense(), nil
}

// UpdateExpense sends the full record and returns the backend's version.
func (c *Client) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	var dto expenseDTO
	path := expensePath(e.ID)
	if err := c.call(ctx, http.MethodPut, path, toDraftDTO(e.Draft()), &dto, ""); err != nil {
		return core.Expense{}, err
	}
	return dto.expense(), nil
}

// DeleteExpense ignores any confirmation body the backend sends.
func (c *Client) DeleteExpense(ctx context.Context, id int64) error {
	_, err := c.Request(ctx, http.MethodDelete, expensePath(id), nil)
	return err
}

func (c *Client) MonthlyIncome(ctx context.Context) (decimal.Decimal, error) {
	var dto incomeDTO
	if err := c.call(ctx, http.MethodGet, pathIncome, nil, &dto, ""); err != nil {
		return decimal.Zero, err
	}
	return dto.Amount.Decimal, nil
}

// UpdateMonthlyIncome returns the amount the backend stored. A success
// without a payload is taken as confirmation of the requested amount.
func (c *Client) UpdateMonthlyIncome(ctx context.Context, amt decimal.Decimal) (decimal.Decimal, error) {
	res, err := c.Request(ctx, http.MethodPut, pathIncome, incomeDTO{Amount: amount{amt}})
	if err != nil {
		return decimal.Zero, err
	}
	if res.NoContent {
		return amt, nil
	}
	var dto incomeDTO
	if err := c.decode(http.MethodPut, pathIncome, res, &dto, ""); err != nil {
		return decimal.Zero, err
	}
	return dto.Amount.Decimal, nil
}

func (c *Client) ChartData(ctx context.Context) (chart.Remote, error) {
	var dto chartDTO
	if err := c.call(ctx, http.MethodGet, pathCharts, nil, &dto, ""); err != nil {
		return chart.Remote{}, err
	}
	return dto.remote(), nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any, varTag string) error {
	res, err := c.Request(ctx, method, path, body)
	if err != nil {
		return err
	}
	return c.decode(method, path, res, out, varTag)
}

// decode unmarshals and validates a payload. Structs are validated by their
// tags; slices need varTag (usually "dive").
func (c *Client) decode(method, path string, res Result, out any, varTag string) error {
	fail := func(err error) error {
		return &RequestFailedError{
			Method:     method,
			Path:       path,
			StatusCode: res.StatusCode,
			RawBody:    string(res.Raw),
			Err:        err,
		}
	}
	if res.NoContent {
		return fail(ErrEmptyResponse)
	}
	if err := res.Decode(out); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}

	var err error
	if varTag != "" {
		err = c.validate.Var(reflect.Indirect(reflect.ValueOf(out)).Interface(), varTag)
	} else {
		err = c.validate.Struct(out)
	}
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	return nil
}

func expensePath(id int64) string {
	return fmt.Sprintf("%s/%d", pathExpenses, id)
}
