package http

import (
	"html/template"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"expensedash/internal/chart"
	"expensedash/internal/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// templateFuncs are available to every dashboard template.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money":      core.FormatMoney,
		"categories": func() []core.Category { return core.Categories },
		"chartKinds": func() []chart.Kind { return chart.Kinds },
		"toJSON": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
		"datetime": func(e core.Expense) string {
			if e.CreatedAt.IsZero() {
				return ""
			}
			return e.CreatedAt.Format("2006-01-02 15:04")
		},
	}
}
