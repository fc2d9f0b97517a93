package workqueue

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, 3, 6, 100} {
		_, err := New[int](capacity)
		assert.ErrorIs(t, err, ErrCapacity, "capacity %d", capacity)
	}
	for _, capacity := range []int{1, 2, 64, 1024} {
		q, err := New[int](capacity)
		require.NoError(t, err, "capacity %d", capacity)
		assert.Equal(t, capacity, q.Cap())
	}
}

func TestPushPopFIFO(t *testing.T) {
	q, err := New[int](8)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.True(t, q.Push(i))
	}
	assert.Equal(t, 5, q.Len())

	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	_, ok := q.Pop()
	assert.False(t, ok, "queue should be empty")
}

func TestPushFull(t *testing.T) {
	q, err := New[int](4)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.True(t, q.Push(i))
	}
	assert.False(t, q.Push(99), "push should fail on a full queue")

	// freeing one slot makes room again
	_, ok := q.Pop()
	require.True(t, ok)
	assert.True(t, q.Push(99))
}

// The counters keep running past the capacity; wrap-around must not alias
// live slots.
func TestWrapAround(t *testing.T) {
	q, err := New[int](4)
	require.NoError(t, err)

	for round := 0; round < 100; round++ {
		require.True(t, q.Push(round*2))
		require.True(t, q.Push(round*2+1))
		a, ok := q.Pop()
		require.True(t, ok)
		b, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, round*2, a)
		assert.Equal(t, round*2+1, b)
	}
}

// One producer, many consumers: the popped multiset is exactly {0..K-1} and
// every consumer observes a strictly increasing subsequence.
func TestSPMCClaimOrder(t *testing.T) {
	const (
		items     = 10000
		consumers = 4
	)
	q, err := New[int](64)
	require.NoError(t, err)

	var popped atomic.Int64
	results := make([][]int, consumers)
	var wg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for popped.Load() < items {
				v, ok := q.Pop()
				if !ok {
					runtime.Gosched()
					continue
				}
				popped.Add(1)
				results[c] = append(results[c], v)
			}
		}(c)
	}

	for i := 0; i < items; i++ {
		for !q.Push(i) {
			runtime.Gosched()
		}
	}
	wg.Wait()

	var all []int
	for c, seq := range results {
		if !sort.IntsAreSorted(seq) {
			t.Errorf("consumer %d observed a non-increasing sequence", c)
		}
		all = append(all, seq...)
	}
	require.Len(t, all, items)
	sort.Ints(all)
	for i, v := range all {
		if v != i {
			t.Fatalf("popped multiset differs from pushed set at %d: got %d", i, v)
		}
	}
}

// No lost wakeups: a push that leaves the queue non-empty releases a waiter
// within a bounded delay.
func TestWaitNotEmptyWakesOnPush(t *testing.T) {
	q, err := New[int](8)
	require.NoError(t, err)

	var stop atomic.Bool
	woken := make(chan struct{})
	go func() {
		q.WaitNotEmpty(&stop)
		close(woken)
	}()

	time.Sleep(50 * time.Millisecond)
	require.True(t, q.Push(1))

	select {
	case <-woken:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by the push")
	}
}

// Shutdown liveness: Wake plus the stop flag releases every blocked waiter.
func TestWakeReleasesAllWaiters(t *testing.T) {
	q, err := New[int](8)
	require.NoError(t, err)

	var stop atomic.Bool
	const waiters = 8
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.WaitNotEmpty(&stop)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	stop.Store(true)
	q.Wake()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiters did not exit after Wake with stop set")
	}
}

func TestDrain(t *testing.T) {
	q, err := New[int](8)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.True(t, q.Push(i))
	}

	var drained []int
	q.Drain(func(v int) { drained = append(drained, v) })
	assert.Equal(t, []int{0, 1, 2}, drained)
	assert.Equal(t, 0, q.Len())
}
