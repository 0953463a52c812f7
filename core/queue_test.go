package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOTaskQueue_FIFO(t *testing.T) {
	q := NewFIFOTaskQueue()
	var order []int

	for i := 0; i < 5; i++ {
		q.Push(TaskItem{Task: func(ctx context.Context) { order = append(order, i) }})
	}
	require.Equal(t, 5, q.Len())

	for !q.IsEmpty() {
		item, ok := q.Pop()
		require.True(t, ok)
		item.Task(context.Background())
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestFIFOTaskQueue_Drain(t *testing.T) {
	q := NewFIFOTaskQueue()
	var dropped []int
	for i := 0; i < 3; i++ {
		q.Push(TaskItem{Task: func(ctx context.Context) {}, OnDrop: func() { dropped = append(dropped, i) }})
	}

	items := q.Drain()
	require.Len(t, items, 3)
	assert.True(t, q.IsEmpty())
	for _, item := range items {
		item.OnDrop()
	}
	assert.Equal(t, []int{0, 1, 2}, dropped)
}

// TestSerialQueue_FIFOOnOneGoroutine verifies strict ordering
// Given: A serial queue
// When: 100 tasks are submitted
// Then: They run in submission order and never overlap
func TestSerialQueue_FIFOOnOneGoroutine(t *testing.T) {
	// Arrange
	q := NewSerialQueue("test.serial", &QueueConfig{Logger: NewNoOpLogger()})
	defer q.Shutdown()

	var mu sync.Mutex
	var order []int
	var active, overlap atomic.Int32
	var wg sync.WaitGroup

	// Act
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.True(t, q.Submit(func(ctx context.Context) {
			defer wg.Done()
			if active.Add(1) > 1 {
				overlap.Add(1)
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			active.Add(-1)
		}))
	}
	wg.Wait()

	// Assert
	assert.True(t, q.Serial())
	assert.Zero(t, overlap.Load())
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

// TestConcurrentQueue_RunsInParallel verifies several workers execute at once
func TestConcurrentQueue_RunsInParallel(t *testing.T) {
	q := NewConcurrentQueue("test.concurrent", 4, &QueueConfig{Logger: NewNoOpLogger(), StallTimeout: time.Hour})
	defer q.Shutdown()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		q.Submit(func(ctx context.Context) {
			defer wg.Done()
			cur := active.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			active.Add(-1)
		})
	}
	wg.Wait()

	assert.False(t, q.Serial())
	assert.Equal(t, 4, q.WorkerCount())
	assert.Greater(t, peak.Load(), int32(1))
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

// TestConcurrentQueue_StalledBacklogGetsOverflowWorker covers a blocked worker
// Given: A single-worker queue whose task waits for a task queued behind it
// When: The backlog makes no progress for StallTimeout
// Then: An overflow worker runs the queued task and exits once the backlog drains
func TestConcurrentQueue_StalledBacklogGetsOverflowWorker(t *testing.T) {
	// Arrange
	q := NewConcurrentQueue("test.overflow", 1, &QueueConfig{Logger: NewNoOpLogger(), StallTimeout: 20 * time.Millisecond})
	defer q.Shutdown()

	inner := make(chan struct{})
	outerDone := make(chan struct{})
	var overflowSeen atomic.Int32

	// Act
	q.Submit(func(ctx context.Context) {
		q.Submit(func(ctx context.Context) {
			overflowSeen.Store(int32(q.Stats().Overflow))
			close(inner)
		})
		<-inner
		close(outerDone)
	})

	// Assert
	select {
	case <-outerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("task waiting on its own queue never finished")
	}
	assert.Equal(t, int32(1), overflowSeen.Load())
	require.Eventually(t, func() bool { return q.Stats().Overflow == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, q.WorkerCount())

	require.Eventually(t, func() bool { return len(q.RecentTasks(0)) == 2 }, time.Second, 5*time.Millisecond)
	workers := map[int]bool{}
	for _, rec := range q.RecentTasks(0) {
		workers[rec.WorkerID] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true}, workers)
}

// TestConcurrentQueue_BusyBacklogKeepsWorkerCount verifies progress suppresses overflow
// Given: A single-worker queue draining short tasks
// When: The backlog keeps moving faster than StallTimeout
// Then: No overflow worker is added
func TestConcurrentQueue_BusyBacklogKeepsWorkerCount(t *testing.T) {
	q := NewConcurrentQueue("test.busy", 1, &QueueConfig{Logger: NewNoOpLogger(), StallTimeout: 200 * time.Millisecond})
	defer q.Shutdown()

	var peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		q.Submit(func(ctx context.Context) {
			defer wg.Done()
			if n := int32(q.Stats().Overflow); n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(2 * time.Millisecond)
		})
	}
	wg.Wait()

	assert.Zero(t, peak.Load())
}

func TestConcurrentQueue_InvalidWorkers(t *testing.T) {
	assert.Panics(t, func() { NewConcurrentQueue("bad", 0, nil) })
}

func TestQueue_NilTaskPanics(t *testing.T) {
	q := NewSerialQueue("nil.task", &QueueConfig{Logger: NewNoOpLogger()})
	defer q.Shutdown()

	assert.PanicsWithValue(t, "dispatch: nil task", func() { q.Submit(nil) })
}

// TestQueue_PanicRecovered verifies a panicking task does not kill the worker
// Given: A queue with a recording panic handler and metrics
// When: A task panics and another task follows
// Then: The panic is reported and the following task still runs
func TestQueue_PanicRecovered(t *testing.T) {
	panics := &testPanicHandler{}
	metrics := newTestMetrics()
	q := NewSerialQueue("test.panic", &QueueConfig{Logger: NewNoOpLogger(), PanicHandler: panics, Metrics: metrics})
	defer q.Shutdown()

	done := make(chan struct{})
	q.Submit(func(ctx context.Context) { panic("worker survives") })
	q.Submit(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task after panic did not run")
	}

	require.Eventually(t, func() bool { return len(q.RecentTasks(0)) == 2 }, time.Second, 5*time.Millisecond)
	calls := panics.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "worker survives", calls[0].PanicInfo)
	assert.Equal(t, 1, metrics.Panics("test.panic"))

	stats := q.Stats()
	assert.Equal(t, int64(2), stats.Executed)
	assert.Equal(t, int64(1), stats.Panicked)

	recent := q.RecentTasks(10)
	require.Len(t, recent, 2)
	assert.False(t, recent[0].Panicked, "newest first")
	assert.True(t, recent[1].Panicked)
}

// TestQueue_Stats verifies the queue snapshot
func TestQueue_Stats(t *testing.T) {
	q := NewConcurrentQueue("test.stats", 2, &QueueConfig{Logger: NewNoOpLogger(), StallTimeout: time.Hour})
	defer q.Shutdown()

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		q.Submit(func(ctx context.Context) {
			started <- struct{}{}
			<-release
		})
	}
	<-started
	<-started

	stats := q.Stats()
	assert.Equal(t, "test.stats", stats.Label)
	assert.Equal(t, "concurrent", stats.Type)
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Queued)
	assert.Zero(t, stats.Overflow)
	assert.False(t, stats.Closed)

	close(release)
	require.Eventually(t, func() bool { return len(q.RecentTasks(0)) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(3), q.Stats().Executed)
	assert.False(t, q.Stats().LastTaskAt.IsZero())
}

// TestQueue_ShutdownRejectsAndDrops verifies Shutdown semantics
// Given: A serial queue with one running task and two queued tasks
// When: Shutdown is called
// Then: Queued tasks are dropped through OnDrop and later submissions are rejected
func TestQueue_ShutdownRejectsAndDrops(t *testing.T) {
	metrics := newTestMetrics()
	q := NewSerialQueue("test.shutdown", &QueueConfig{Logger: NewNoOpLogger(), Metrics: metrics})

	started := make(chan struct{})
	release := make(chan struct{})
	var dropped, ran atomic.Int32

	q.Submit(func(ctx context.Context) {
		close(started)
		<-release
	})
	for i := 0; i < 2; i++ {
		submitTask(q, func(ctx context.Context) { ran.Add(1) }, func() { dropped.Add(1) })
	}
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	q.Shutdown()

	assert.True(t, q.IsClosed())
	assert.Equal(t, int32(2), dropped.Load())
	assert.Zero(t, ran.Load())
	assert.False(t, q.Submit(func(ctx context.Context) {}))
	assert.Equal(t, []string{"shutdown", "shutdown", "shutting down"}, metrics.Rejected("test.shutdown"))

	// A second Shutdown is a no-op.
	q.Shutdown()
}

// TestQueue_ShutdownGraceful verifies queued work drains before workers stop
func TestQueue_ShutdownGraceful(t *testing.T) {
	q := NewConcurrentQueue("test.graceful", 2, &QueueConfig{Logger: NewNoOpLogger()})
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		q.Submit(func(ctx context.Context) {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
		})
	}

	require.NoError(t, q.ShutdownGraceful(time.Second))
	assert.Equal(t, int32(10), ran.Load())
}

// TestQueue_ShutdownGracefulTimeout verifies the timeout error
func TestQueue_ShutdownGracefulTimeout(t *testing.T) {
	q := NewSerialQueue("test.graceful.timeout", &QueueConfig{Logger: NewNoOpLogger()})
	var dropped atomic.Int32

	q.Submit(func(ctx context.Context) { time.Sleep(200 * time.Millisecond) })
	submitTask(q, func(ctx context.Context) {}, func() { dropped.Add(1) })

	err := q.ShutdownGraceful(50 * time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Contains(t, err.Error(), "test.graceful.timeout")
	assert.Equal(t, int32(1), dropped.Load())
}

// TestQueue_WorkerContextCancelledOnShutdown verifies running tasks observe shutdown
func TestQueue_WorkerContextCancelledOnShutdown(t *testing.T) {
	q := NewConcurrentQueue("test.ctx", 1, &QueueConfig{Logger: NewNoOpLogger()})
	started := make(chan struct{})
	var observed atomic.Bool

	q.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		observed.Store(true)
	})
	<-started
	q.Shutdown()

	assert.True(t, observed.Load())
}
