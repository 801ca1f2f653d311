// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Handlers accept both form-encoded bodies, as sent by HTMX, and JSON.

package http

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"expensedash/internal/core"
)

const maxRequestBody = 64 << 10

var errInvalidID = errors.New("invalid expense id")

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.Contains(p.contentType, "json") || p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseDraft reads name, amount and category. A malformed amount is
// reported as a validation error; everything else is checked by the store.
func ParseDraft(p *RequestBodyParser) (core.Draft, error) {
	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return core.Draft{}, &core.ValidationError{Field: string(core.FieldAmount), Err: err}
	}
	return core.Draft{
		Name:     p.Get("name"),
		Amount:   amount,
		Category: core.Category(p.Get("category")),
	}, nil
}

// ParseIncome reads the income amount. Zero is allowed.
func ParseIncome(p *RequestBodyParser) (decimal.Decimal, error) {
	amount, err := core.ParseAmount(p.Get("amount"))
	if errors.Is(err, core.ErrNegativeAmount) {
		err = core.ErrNegativeIncome
	}
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: "income", Err: err}
	}
	return amount, nil
}

// ParseExpenseID reads the {id} route parameter.
func ParseExpenseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// ParseBodyOrFail parses the request body and returns an error response on failure.
// Returns nil on success.
func ParseBodyOrFail(p *RequestBodyParser) *HTMXResponseBuilder {
	if err := p.Parse(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}
