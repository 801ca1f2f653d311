package client

import (
	"bytes"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"expensedash/internal/chart"
	"expensedash/internal/core"
)

// amount is a decimal that travels as a bare JSON number.
type amount struct {
	decimal.Decimal
}

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

func (a *amount) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	return a.Decimal.UnmarshalJSON(b)
}

// timestamp accepts RFC 3339 as well as the zone-less ISO form the backend
// emits for naive datetimes.
type timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	var err error
	for _, layout := range timestampLayouts {
		var parsed time.Time
		if parsed, err = time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return err
}

func (t timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}

type expenseDTO struct {
	ID        int64      `json:"id" validate:"gt=0"`
	Name      string     `json:"name" validate:"required"`
	Amount    amount     `json:"amount" validate:"gte=0"`
	// Unknown categories are folded into Other, as the chart data does.
	Category  string     `json:"category"`
	CreatedAt *timestamp `json:"created_at,omitempty"`
	UpdatedAt *timestamp `json:"updated_at,omitempty"`
}

type draftDTO struct {
	Name     string `json:"name"`
	Amount   amount `json:"amount"`
	Category string `json:"category"`
}

type incomeDTO struct {
	Amount amount `json:"amount" validate:"gte=0"`
}

type chartDTO struct {
	Area []areaDTO `json:"area_chart" validate:"dive"`
	Bar  []amount  `json:"bar_chart" validate:"max=31,dive,gte=0"`
	Line []amount  `json:"line_chart" validate:"max=12,dive,gte=0"`
}

type areaDTO struct {
	Category string `json:"category" validate:"required"`
	Value    amount `json:"value" validate:"gte=0"`
}

func (d expenseDTO) expense() core.Expense {
	e := core.Expense{
		ID:       d.ID,
		Name:     d.Name,
		Amount:   d.Amount.Decimal,
		Category: core.CoerceCategory(d.Category),
	}
	if d.CreatedAt != nil {
		e.CreatedAt = d.CreatedAt.Time
	}
	if d.UpdatedAt != nil {
		e.UpdatedAt = d.UpdatedAt.Time
	}
	return e
}

func toDraftDTO(d core.Draft) draftDTO {
	return draftDTO{Name: d.Name, Amount: amount{d.Amount}, Category: string(d.Category)}
}

func (d chartDTO) remote() chart.Remote {
	r := chart.Remote{
		Area: make([]chart.RemoteCategory, len(d.Area)),
		Bar:  make([]decimal.Decimal, len(d.Bar)),
		Line: make([]decimal.Decimal, len(d.Line)),
	}
	for i, a := range d.Area {
		r.Area[i] = chart.RemoteCategory{Category: a.Category, Value: a.Value.Decimal}
	}
	for i, v := range d.Bar {
		r.Bar[i] = v.Decimal
	}
	for i, v := range d.Line {
		r.Line[i] = v.Decimal
	}
	return r
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if a, ok := field.Interface().(amount); ok {
			return a.InexactFloat64()
		}
		return nil
	}, amount{})
	return v
}
