package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"expensedash/internal/core"
)

type EventKind string

const (
	ExpenseCreated EventKind = "expense.created"
	ExpenseUpdated EventKind = "expense.updated"
	ExpenseDeleted EventKind = "expense.deleted"
	IncomeUpdated  EventKind = "income.updated"
)

// Event describes a change that the backend accepted.
type Event struct {
	Kind    EventKind
	Expense core.Expense    // set for expense events; deletes carry the removed record, or only ID when it was not held
	Field   core.Field      // set for ExpenseUpdated
	Income  decimal.Decimal // set for IncomeUpdated
	At      time.Time
}

// EventPublisher receives store events. Publish errors are logged and never
// fail the mutation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

func (s *Store) publish(ctx context.Context, e Event) {
	if s.publisher == nil {
		return
	}
	e.At = s.now()
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish store event",
			"event", string(e.Kind), "error", err)
	}
}
