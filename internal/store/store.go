// Package store owns the in-memory expense collection, the monthly income and
// the aggregates derived from them.
//
// The backend is the source of truth: every mutation goes to the backend
// first and the in-memory state only changes once it succeeded. The store
// mutex is held only while state is read or replaced, never across a network
// call, so concurrent mutations race at the backend and the last one to
// complete wins.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"expensedash/internal/chart"
	"expensedash/internal/core"
	"expensedash/internal/log"
	"expensedash/internal/resource"
)

// API is the part of the backend client the store depends on.
type API interface {
	ListExpenses(ctx context.Context) ([]core.Expense, error)
	CreateExpense(ctx context.Context, d core.Draft) (core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error
	MonthlyIncome(ctx context.Context) (decimal.Decimal, error)
	UpdateMonthlyIncome(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)
	ChartData(ctx context.Context) (chart.Remote, error)
}

var ErrDuplicateID = errors.New("duplicate expense id")

// View is an immutable copy of the store state. Callers must not modify the
// Expenses slice or the chart series.
type View struct {
	Expenses []core.Expense
	core.Summary
	Charts chart.Set
	// Loaded is false until the first successful LoadAll.
	Loaded bool
}

type Store struct {
	api       API
	publisher EventPublisher
	logger    *log.Logger
	audit     *log.StructuredLogger
	now       func() time.Time

	mu       sync.Mutex
	expenses []core.Expense
	income   decimal.Decimal
	charts   chart.Set
	loaded   bool
	// pending is the dashboard cycle of the load in flight, nil when idle.
	pending *resource.Cycle[View]
	// failed is set while the last load failed; mutations then leave the
	// dashboard Failed.
	failed bool

	dashboard *resource.Resource[View]
}

type Option func(*Store)

func WithPublisher(p EventPublisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l.WithComponent(log.ComponentStore) }
}

// WithDefaultIncome sets the income used before the first successful load.
func WithDefaultIncome(d decimal.Decimal) Option {
	return func(s *Store) { s.income = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(api API, opts ...Option) *Store {
	s := &Store{
		api:       api,
		logger:    log.Discard(),
		now:       time.Now,
		income:    core.DefaultIncome,
		dashboard: resource.New[View](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.charts = chart.Build(nil, s.now())
	s.audit = log.NewStructuredLogger(s.logger)
	return s
}

// Dashboard is the resource views render from. It is Loading until the
// first LoadAll settles and Failed while the last load failed. Observers may
// be called with the store locked and must not call back into the store.
func (s *Store) Dashboard() *resource.Resource[View] {
	return s.dashboard
}

// Snapshot returns the current state regardless of the dashboard state.
func (s *Store) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// LoadAll fetches expenses, income and chart data concurrently. If any fetch
// fails, nothing is replaced and the dashboard moves to Failed. A load
// superseded by a newer one leaves the state to that newer load.
func (s *Store) LoadAll(ctx context.Context) error {
	s.mu.Lock()
	cycle := s.dashboard.Begin()
	s.pending = cycle
	s.mu.Unlock()

	var (
		expenses []core.Expense
		income   decimal.Decimal
		remote   chart.Remote
	)
	err := resource.All(ctx,
		func(ctx context.Context) (err error) {
			if expenses, err = s.api.ListExpenses(ctx); err != nil {
				return fmt.Errorf("load expenses: %w", err)
			}
			return nil
		},
		func(ctx context.Context) (err error) {
			if income, err = s.api.MonthlyIncome(ctx); err != nil {
				return fmt.Errorf("load income: %w", err)
			}
			return nil
		},
		func(ctx context.Context) (err error) {
			if remote, err = s.api.ChartData(ctx); err != nil {
				return fmt.Errorf("load chart data: %w", err)
			}
			return nil
		},
	)
	if err == nil {
		err = checkIDs(expenses)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Dashboard load failed",
			log.FieldOperation, log.OpLoad, log.FieldError, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != cycle {
		s.logger.DebugContext(ctx, "Dashboard load superseded", log.FieldOperation, log.OpLoad)
		return err
	}
	s.pending = nil

	if err != nil {
		s.failed = true
		cycle.Reject(err)
		return err
	}

	s.expenses = expenses
	s.income = income
	s.charts = chart.FromRemote(remote)
	s.loaded = true
	s.failed = false
	cycle.Resolve(s.viewLocked())

	s.logger.InfoContext(ctx, "Dashboard loaded",
		log.FieldCount, len(expenses), log.FieldIncome, income.String())
	return nil
}

// Add validates d locally and submits it. Invalid drafts never reach the
// backend and fail with a *core.ValidationError.
func (s *Store) Add(ctx context.Context, d core.Draft) (core.Expense, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return core.Expense{}, err
	}

	created, err := s.api.CreateExpense(ctx, d)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	s.mutateExpenses(func() {
		if i := s.indexLocked(created.ID); i >= 0 {
			s.expenses[i] = created
		} else {
			// Newest first, as the backend lists them.
			s.expenses = slices.Insert(s.expenses, 0, created)
		}
	})

	s.audit.LogExpenseChange(ctx, log.OpCreate, created.ID, created.Name, created.Amount.String(), string(created.Category))
	s.publish(ctx, Event{Kind: ExpenseCreated, Expense: created})
	return created, nil
}

// Update sets one field of expense id from raw form input and persists the
// full record. The returned bool is false when id is not held, in which case
// nothing happens. Amounts that do not parse, including negative ones, are
// stored as zero and unknown categories as Other.
func (s *Store) Update(ctx context.Context, id int64, field, value string) (core.Expense, bool, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	var current core.Expense
	if i >= 0 {
		current = s.expenses[i]
	}
	s.mu.Unlock()
	if i < 0 {
		return core.Expense{}, false, nil
	}

	f, ok := core.ParseField(field)
	if !ok {
		return core.Expense{}, true, &core.ValidationError{Field: field, Err: core.ErrUnknownField}
	}
	next, err := current.With(f, value)
	if err != nil {
		return core.Expense{}, true, err
	}

	updated, err := s.api.UpdateExpense(ctx, next)
	if err != nil {
		return core.Expense{}, true, fmt.Errorf("update expense %d: %w", id, err)
	}

	s.mutateExpenses(func() {
		// Removed while the request was in flight: do not bring it back.
		if i := s.indexLocked(id); i >= 0 {
			s.expenses[i] = updated
		}
	})

	s.audit.LogExpenseChange(ctx, log.OpUpdate, updated.ID, updated.Name, updated.Amount.String(), string(updated.Category))
	s.publish(ctx, Event{Kind: ExpenseUpdated, Expense: updated, Field: f})
	return updated, true, nil
}

// Remove deletes expense id on the backend, then locally. On failure the
// collection is left as it was.
func (s *Store) Remove(ctx context.Context, id int64) error {
	if err := s.api.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}

	removed := core.Expense{ID: id}
	s.mutateExpenses(func() {
		if i := s.indexLocked(id); i >= 0 {
			removed = s.expenses[i]
			s.expenses = slices.Delete(s.expenses, i, i+1)
		}
	})

	s.audit.LogExpenseChange(ctx, log.OpDelete, id, removed.Name, removed.Amount.String(), string(removed.Category))
	s.publish(ctx, Event{Kind: ExpenseDeleted, Expense: removed})
	return nil
}

// SetIncome persists the monthly income. When the backend cannot be reached
// the local value is still updated and persisted is false; only a negative
// amount is an error.
func (s *Store) SetIncome(ctx context.Context, amount decimal.Decimal) (persisted bool, err error) {
	if amount.IsNegative() {
		return false, &core.ValidationError{Field: "income", Err: core.ErrNegativeIncome}
	}

	stored, err := s.api.UpdateMonthlyIncome(ctx, amount)
	if err != nil {
		s.logger.WarnContext(ctx, "Income not persisted, keeping local value",
			log.FieldOperation, log.OpIncome, log.FieldIncome, amount.String(), log.FieldError, err)
		stored = amount
	} else {
		persisted = true
	}

	s.mutate(func() { s.income = stored })

	if persisted {
		s.publish(ctx, Event{Kind: IncomeUpdated, Income: stored})
	}
	return persisted, nil
}

func (s *Store) indexLocked(id int64) int {
	return slices.IndexFunc(s.expenses, func(e core.Expense) bool { return e.ID == id })
}

// mutate applies fn under the store lock and publishes the new view while
// still holding it, so views reach the dashboard in mutation order. The
// dashboard is only touched once loaded and while no load is pending or
// failed: a pending load resolves with the state current when it settles, and
// a failed dashboard stays failed until the next load.
func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn()
	if s.loaded && s.pending == nil && !s.failed {
		s.dashboard.Set(s.viewLocked())
	}
}

// mutateExpenses is mutate for changes to the collection; it also recomputes
// the chart series.
func (s *Store) mutateExpenses(fn func()) {
	s.mutate(func() {
		fn()
		s.charts = chart.Build(s.expenses, s.now())
	})
}

func (s *Store) viewLocked() View {
	return View{
		Expenses: slices.Clone(s.expenses),
		Summary:  core.Summarize(s.expenses, s.income),
		Charts:   s.charts,
		Loaded:   s.loaded,
	}
}

func checkIDs(expenses []core.Expense) error {
	seen := make(map[int64]struct{}, len(expenses))
	for _, e := range expenses {
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateID, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}
