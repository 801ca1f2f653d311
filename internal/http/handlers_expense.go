package http

import (
	"errors"
	"html/template"
	"net/http"

	"expensedash/internal/core"
	"expensedash/internal/log"
	"expensedash/internal/resource"
)

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if resp := ParseBodyOrFail(p); resp != nil {
		resp.Write(w)
		return
	}

	draft, err := ParseDraft(p)
	if err != nil {
		s.writeStoreError(w, r, log.OpCreate, err)
		return
	}

	created, err := s.store.Add(r.Context(), draft)
	if err != nil {
		s.writeStoreError(w, r, log.OpCreate, err)
		return
	}

	NewHTMXResponse().
		TriggerExpenseCreated(created.ID).
		TriggerFormReset().
		TriggerSuccessNotification("Expense added").
		BodyHTML(`<div class="success">Added ` + template.HTMLEscapeString(created.Name) +
			` (` + template.HTMLEscapeString(core.FormatMoney(created.Amount)) +
			`, ` + template.HTMLEscapeString(string(created.Category)) + `)</div>`).
		Write(w)
}

// handleUpdateExpense sets one field and answers with the re-rendered row.
func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := ParseExpenseID(r)
	if err != nil {
		BadRequestError("Invalid expense id").Write(w)
		return
	}

	p := NewRequestBodyParser(w, r)
	if resp := ParseBodyOrFail(p); resp != nil {
		resp.Write(w)
		return
	}

	updated, found, err := s.store.Update(r.Context(), id, p.Get("field"), p.Get("value"))
	if !found {
		// Already gone from the store: nothing to update, and the empty body
		// swaps out the stale row.
		NewHTMXResponse().BodyHTML("").Write(w)
		return
	}
	if err != nil {
		s.writeStoreError(w, r, log.OpUpdate, err)
		return
	}

	row, err := s.renderString("expense_row", updated)
	if err != nil {
		s.logTemplateError(r, err)
		InternalServerError("Error rendering page").Write(w)
		return
	}
	NewHTMXResponse().
		TriggerExpenseUpdated(updated.ID).
		BodyHTML(row).
		Write(w)
}

// handleDeleteExpense answers with an empty body so the row is swapped out.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := ParseExpenseID(r)
	if err != nil {
		BadRequestError("Invalid expense id").Write(w)
		return
	}

	if err := s.store.Remove(r.Context(), id); err != nil {
		s.writeStoreError(w, r, log.OpDelete, err)
		return
	}

	NewHTMXResponse().
		TriggerExpenseDeleted(id).
		TriggerSuccessNotification("Expense deleted").
		BodyHTML("").
		Write(w)
}

// writeStoreError answers 422 for rejected input and 502 for failures of the
// expense service.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		UnprocessableEntityError(verr.UserMessage()).Write(w)
		return
	}

	log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Expense service call failed",
		err, log.ComponentClient, op, log.LogFields{log.FieldErrorType: log.ErrorTypeUpstream})
	BadGatewayError(resource.Message(err)).Write(w)
}
