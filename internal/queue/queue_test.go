package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	ConnID int
	Name   string
}

func TestQueue_PushPopOrder(t *testing.T) {
	q := New[testEvent]()

	_, ok := q.Pop()
	assert.False(t, ok)

	require.NoError(t, q.Push(testEvent{ConnID: 1, Name: "first"}))
	require.NoError(t, q.Push(testEvent{ConnID: 2, Name: "second"}))
	assert.Equal(t, 2, q.Len())

	e, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, e.ConnID)

	e, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "second", e.Name)
	assert.Zero(t, q.Len())
}

func TestQueue_Bounded(t *testing.T) {
	q := NewBounded[int](2)
	assert.Equal(t, 2, q.Cap())

	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	assert.ErrorIs(t, q.Push(3), ErrFull)
	assert.ErrorIs(t, q.Push(4), ErrFull)
	assert.Equal(t, uint64(2), q.Dropped())

	q.Pop()
	assert.NoError(t, q.Push(5))
	assert.Equal(t, []int{2, 5}, q.Drain())
}

func TestQueue_NegativeCapacityIsUnbounded(t *testing.T) {
	q := NewBounded[int](-3)
	for i := 0; i < 100; i++ {
		require.NoError(t, q.Push(i))
	}
	assert.Equal(t, 100, q.Len())
}

func TestQueue_Drain(t *testing.T) {
	q := New[int]()
	assert.Empty(t, q.Drain())

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Push(i))
	}
	batch := q.Drain()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, batch)
	assert.Zero(t, q.Len())

	require.NoError(t, q.Push(9))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, batch, "drained batch must not alias new pushes")
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup

	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = q.Push(i)
			}
		}()
	}

	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		total += len(q.Drain())
		select {
		case <-done:
			total += len(q.Drain())
			assert.Equal(t, 800, total)
			return
		default:
		}
	}
}

func TestQueue_RequeueKeepsOrder(t *testing.T) {
	q := NewBounded[int](2)
	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	batch := q.Drain()

	require.NoError(t, q.Push(3))
	q.Requeue(batch)
	q.Requeue(nil)

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []int{1, 2, 3}, q.Drain())
}
