package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Food          Category = "Food"
	Housing       Category = "Housing"
	Transport     Category = "Transport"
	Entertainment Category = "Entertainment"
	Bills         Category = "Bills"
	Shopping      Category = "Shopping"
	Healthcare    Category = "Healthcare"
	Education     Category = "Education"
	Other         Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{Food, Housing, Transport, Entertainment, Bills, Shopping, Healthcare, Education, Other}

// Editable expense fields.
const (
	FieldName     Field = "name"
	FieldAmount   Field = "amount"
	FieldCategory Field = "category"
)

type (
	Category string

	Field string

	// Expense is a record as held by the backend. ID is assigned on creation.
	Expense struct {
		ID        int64
		Name      string
		Amount    decimal.Decimal
		Category  Category
		CreatedAt time.Time // zero when the backend did not report it
		UpdatedAt time.Time
	}

	// Draft is an expense that has not been submitted yet.
	Draft struct {
		Name     string
		Amount   decimal.Decimal
		Category Category
	}
)

var (
	ErrEmptyName       = errors.New("name cannot be empty")
	ErrNameTooLong     = errors.New("name too long (max 200 characters)")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrNegativeAmount  = errors.New("amount cannot be negative")
	ErrNegativeIncome  = errors.New("income cannot be negative")
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownField    = errors.New("unknown field")
)

// ValidationError reports input rejected before any network call.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// UserMessage is shown as-is in the dashboard.
func (e *ValidationError) UserMessage() string {
	return "Invalid " + e.Error()
}

// ParseCategory matches s against the known categories, ignoring case.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// CoerceCategory maps unknown or empty input to Other.
func CoerceCategory(s string) Category {
	if c, ok := ParseCategory(s); ok {
		return c
	}
	return Other
}

func (c Category) Valid() bool {
	_, ok := ParseCategory(string(c))
	return ok
}

// ParseField returns the editable field named s.
func ParseField(s string) (Field, bool) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldName, FieldAmount, FieldCategory:
		return f, true
	}
	return "", false
}

// Validate checks a draft before it is sent to the backend.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &ValidationError{Field: string(FieldName), Err: ErrEmptyName}
	}
	if len(d.Name) > 200 {
		return &ValidationError{Field: string(FieldName), Err: ErrNameTooLong}
	}
	if !d.Amount.IsPositive() {
		return &ValidationError{Field: string(FieldAmount), Err: ErrInvalidAmount}
	}
	if !d.Category.Valid() {
		return &ValidationError{Field: string(FieldCategory), Err: ErrUnknownCategory}
	}
	return nil
}

// Normalize trims the name and canonicalises the category spelling.
// An empty category becomes Other.
func (d Draft) Normalize() Draft {
	d.Name = strings.TrimSpace(d.Name)
	if strings.TrimSpace(string(d.Category)) == "" {
		d.Category = Other
	} else if c, ok := ParseCategory(string(d.Category)); ok {
		d.Category = c
	}
	return d
}

// Validate checks the invariants every held record must satisfy.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return &ValidationError{Field: string(FieldName), Err: ErrEmptyName}
	}
	if e.Amount.IsNegative() {
		return &ValidationError{Field: string(FieldAmount), Err: ErrNegativeAmount}
	}
	if !e.Category.Valid() {
		return &ValidationError{Field: string(FieldCategory), Err: ErrUnknownCategory}
	}
	return nil
}

// Draft returns the submittable part of the record.
func (e Expense) Draft() Draft {
	return Draft{Name: e.Name, Amount: e.Amount, Category: e.Category}
}

// With returns a copy of e with field set from raw form input.
// Amounts that do not parse become zero.
func (e Expense) With(field Field, raw string) (Expense, error) {
	switch field {
	case FieldName:
		name := strings.TrimSpace(raw)
		if name == "" {
			return e, &ValidationError{Field: string(FieldName), Err: ErrEmptyName}
		}
		e.Name = name
	case FieldAmount:
		e.Amount = CoerceAmount(raw)
	case FieldCategory:
		e.Category = CoerceCategory(raw)
	default:
		return e, &ValidationError{Field: string(field), Err: ErrUnknownField}
	}
	return e, nil
}
