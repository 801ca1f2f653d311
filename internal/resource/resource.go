// Package resource holds the loading, ready or failed state of data fetched
// from the backend and notifies observers of every transition.
package resource

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

type State int

const (
	Loading State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Snapshot is a point-in-time copy of a resource. Data is only meaningful
// when State is Ready, Err and Message only when it is Failed.
type Snapshot[T any] struct {
	State   State
	Data    T
	Err     error
	Message string
}

// Resource tracks one value through fetch cycles. The zero value is not
// usable; call New.
type Resource[T any] struct {
	mu        sync.Mutex
	snap      Snapshot[T]
	cycle     uint64
	observers map[int]func(Snapshot[T])
	nextID    int
}

func New[T any]() *Resource[T] {
	return &Resource[T]{
		snap:      Snapshot[T]{State: Loading},
		observers: make(map[int]func(Snapshot[T])),
	}
}

// Snapshot returns the current state.
func (r *Resource[T]) Snapshot() Snapshot[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Subscribe registers fn for every later transition. Observers run on the
// goroutine that caused the transition, outside the resource lock.
func (r *Resource[T]) Subscribe(fn func(Snapshot[T])) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.observers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.observers, id)
		r.mu.Unlock()
	}
}

// Cycle is one fetch attempt. It settles at most once, and not at all if a
// newer cycle was started in the meantime.
type Cycle[T any] struct {
	r  *Resource[T]
	id uint64
}

// Begin starts a new cycle and moves the resource back to Loading. The last
// ready value is kept in Data so views can keep showing it while loading.
func (r *Resource[T]) Begin() *Cycle[T] {
	r.mu.Lock()
	r.cycle++
	c := &Cycle[T]{r: r, id: r.cycle}
	r.snap = Snapshot[T]{State: Loading, Data: r.snap.Data}
	snap := r.snap
	r.mu.Unlock()

	r.notify(snap)
	return c
}

// Resolve moves the resource to Ready with v. It reports whether the cycle
// was still current.
func (c *Cycle[T]) Resolve(v T) bool {
	return c.r.settle(c.id, Snapshot[T]{State: Ready, Data: v})
}

// Reject moves the resource to Failed with a user-displayable message.
func (c *Cycle[T]) Reject(err error) bool {
	if err == nil {
		err = errors.New("unknown error")
	}
	return c.r.settle(c.id, Snapshot[T]{State: Failed, Err: err, Message: Message(err)})
}

func (r *Resource[T]) settle(id uint64, next Snapshot[T]) bool {
	r.mu.Lock()
	if id != r.cycle || r.snap.State != Loading {
		r.mu.Unlock()
		return false
	}
	r.snap = next
	r.mu.Unlock()

	r.notify(next)
	return true
}

// Set replaces the value outside of a fetch cycle, as after a local
// mutation. Any pending cycle is superseded.
func (r *Resource[T]) Set(v T) {
	r.mu.Lock()
	r.cycle++
	r.snap = Snapshot[T]{State: Ready, Data: v}
	snap := r.snap
	r.mu.Unlock()

	r.notify(snap)
}

// Load runs fetch as one cycle and returns its error.
func (r *Resource[T]) Load(ctx context.Context, fetch func(context.Context) (T, error)) error {
	c := r.Begin()
	v, err := fetch(ctx)
	if err != nil {
		c.Reject(err)
		return err
	}
	c.Resolve(v)
	return nil
}

func (r *Resource[T]) notify(snap Snapshot[T]) {
	r.mu.Lock()
	fns := make([]func(Snapshot[T]), 0, len(r.observers))
	for _, fn := range r.observers {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// All runs fetches concurrently and waits for every one of them to finish.
// It returns the first error; callers must treat any error as a failure of
// the whole set.
func All(ctx context.Context, fetches ...func(context.Context) error) error {
	var g errgroup.Group
	for _, fetch := range fetches {
		g.Go(func() error {
			return fetch(ctx)
		})
	}
	return g.Wait()
}

// Message returns text suitable for showing to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The request timed out, please retry"
	}
	if errors.Is(err, context.Canceled) {
		return "The request was cancelled"
	}
	return "Something went wrong, please retry"
}
