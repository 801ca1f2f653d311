package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type displayErr struct{}

func (displayErr) Error() string       { return "status 500" }
func (displayErr) UserMessage() string { return "Backend failed" }

func TestInitialStateIsLoading(t *testing.T) {
	r := New[int]()
	assert.Equal(t, Loading, r.Snapshot().State)
}

func TestCycleSettlesOnce(t *testing.T) {
	r := New[string]()
	c := r.Begin()

	assert.True(t, c.Resolve("one"))
	assert.False(t, c.Resolve("two"))
	assert.False(t, c.Reject(errors.New("late")))

	snap := r.Snapshot()
	assert.Equal(t, Ready, snap.State)
	assert.Equal(t, "one", snap.Data)
	assert.NoError(t, snap.Err)
}

func TestSupersededCycleIsIgnored(t *testing.T) {
	r := New[int]()
	old := r.Begin()
	current := r.Begin()

	assert.False(t, old.Resolve(1))
	assert.Equal(t, Loading, r.Snapshot().State)
	assert.True(t, current.Reject(displayErr{}))

	snap := r.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, "Backend failed", snap.Message)
}

func TestSetSupersedesPendingCycle(t *testing.T) {
	r := New[int]()
	c := r.Begin()
	r.Set(7)
	assert.False(t, c.Reject(errors.New("boom")))
	assert.Equal(t, Snapshot[int]{State: Ready, Data: 7}, r.Snapshot())
}

func TestNewCycleReentersLoadingKeepingData(t *testing.T) {
	r := New[int]()
	r.Set(3)
	r.Begin()
	snap := r.Snapshot()
	assert.Equal(t, Loading, snap.State)
	assert.Equal(t, 3, snap.Data)
}

func TestLoad(t *testing.T) {
	r := New[[]int]()
	err := r.Load(context.Background(), func(context.Context) ([]int, error) {
		return []int{1, 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, r.Snapshot().Data)

	boom := errors.New("boom")
	err = r.Load(context.Background(), func(context.Context) ([]int, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	snap := r.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, "Something went wrong, please retry", snap.Message)
}

func TestSubscribe(t *testing.T) {
	r := New[int]()
	var states []State
	unsubscribe := r.Subscribe(func(s Snapshot[int]) {
		states = append(states, s.State)
	})

	c := r.Begin()
	c.Resolve(1)
	c.Resolve(2)
	unsubscribe()
	r.Set(3)

	assert.Equal(t, []State{Loading, Ready}, states)
}

func TestAllWaitsForEveryFetch(t *testing.T) {
	var finished atomic.Int32
	slow := func(context.Context) error {
		time.Sleep(30 * time.Millisecond)
		finished.Add(1)
		return nil
	}
	failing := func(context.Context) error {
		finished.Add(1)
		return displayErr{}
	}

	err := All(context.Background(), slow, failing, slow)
	require.Error(t, err)
	assert.Equal(t, "Backend failed", Message(err))
	assert.Equal(t, int32(3), finished.Load())
}

func TestAllSucceeds(t *testing.T) {
	var a, b int
	err := All(context.Background(),
		func(context.Context) error { a = 1; return nil },
		func(context.Context) error { b = 2; return nil },
	)
	require.NoError(t, err)
	assert.Equal(t, 3, a+b)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "Backend failed", Message(errors.Join(errors.New("x"), displayErr{})))
	assert.Equal(t, "The request timed out, please retry", Message(context.DeadlineExceeded))
}
