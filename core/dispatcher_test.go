package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.GreaterOrEqual(t, opts.UserInteractiveWorkers, 4)
	assert.GreaterOrEqual(t, opts.UserInitiatedWorkers, 4)
	assert.GreaterOrEqual(t, opts.UtilityWorkers, 2)
	assert.Equal(t, 2, opts.BackgroundWorkers)
	assert.Equal(t, time.Hour, opts.DelayMaxIdle)

	filled := Options{UtilityWorkers: 7}.withDefaults()
	assert.Equal(t, 7, filled.UtilityWorkers)
	assert.Equal(t, opts.BackgroundWorkers, filled.BackgroundWorkers)
	assert.NotNil(t, filled.Tracer)
}

// TestDispatcher_Stats verifies the aggregated snapshot
// Given: A dispatcher with 3 utility workers and a pending delayed task
// When: Stats is called after some work
// Then: All five queues are listed main first with their sizes and counters
func TestDispatcher_Stats(t *testing.T) {
	d := NewDispatcher(Options{
		UtilityWorkers: 3,
		QueueConfig:    &QueueConfig{Logger: NewNoOpLogger()},
	})
	defer d.Shutdown()

	require.True(t, d.Async(QoSUtility, func(ctx context.Context) {}).Wait(time.Second))
	delayed := d.AsyncAfter(QoSBackground, time.Hour, func(ctx context.Context) {})
	defer delayed.Cancel()

	var stats DispatcherStats
	require.Eventually(t, func() bool {
		stats = d.Stats()
		return stats.Queues[3].Executed == 1
	}, time.Second, 5*time.Millisecond)

	require.Len(t, stats.Queues, 5)
	assert.Equal(t, "dispatch.main", stats.Queues[0].Label)
	assert.Equal(t, "serial", stats.Queues[0].Type)
	assert.Equal(t, 1, stats.Queues[0].Workers)
	assert.Equal(t, "dispatch.utility", stats.Queues[3].Label)
	assert.Equal(t, 3, stats.Queues[3].Workers)
	assert.Equal(t, 1, stats.Delayed)
	assert.False(t, stats.Closed)
}

func TestDispatcher_RecentTasks(t *testing.T) {
	d := newTestDispatcher(t, nil)

	for i := 0; i < 3; i++ {
		require.True(t, d.Async(QoSMain, func(ctx context.Context) {}).Wait(time.Second))
	}

	require.Eventually(t, func() bool { return len(d.RecentTasks(QoSMain, 0)) == 3 }, time.Second, 5*time.Millisecond)
	records := d.RecentTasks(QoSMain, 2)
	require.Len(t, records, 2)
	assert.Equal(t, "dispatch.main", records[0].Queue)
	assert.False(t, records[0].FinishedAt.Before(records[1].FinishedAt))

	assert.Nil(t, d.RecentTasks(Custom(&recordingQueue{}), 5))
}

// TestDispatcher_ShutdownGraceful verifies queued work drains before stopping
func TestDispatcher_ShutdownGraceful(t *testing.T) {
	d := NewDispatcher(Options{QueueConfig: &QueueConfig{Logger: NewNoOpLogger()}})
	var ran atomic.Int32
	var handles []*TaskHandle
	for _, qos := range BuiltinQoS() {
		handles = append(handles, d.Async(qos, func(ctx context.Context) {
			time.Sleep(10 * time.Millisecond)
			ran.Add(1)
		}))
	}

	require.NoError(t, d.ShutdownGraceful(time.Second))

	assert.Equal(t, int32(5), ran.Load())
	for _, h := range handles {
		assert.Equal(t, TaskCompleted, h.State())
	}
	assert.True(t, d.IsClosed())
	assert.True(t, d.Stats().Closed)
	assert.True(t, d.Async(QoSUtility, func(ctx context.Context) {}).Rejected())

	// Later shutdown calls return the first result.
	assert.NoError(t, d.ShutdownGraceful(time.Millisecond))
	d.Shutdown()
}

// TestDispatcher_ShutdownGracefulTimeout verifies the timeout error names the stuck queue
func TestDispatcher_ShutdownGracefulTimeout(t *testing.T) {
	d := NewDispatcher(Options{QueueConfig: &QueueConfig{Logger: NewNoOpLogger()}})
	started := make(chan struct{})
	d.Async(QoSMain, func(ctx context.Context) {
		close(started)
		time.Sleep(200 * time.Millisecond)
	})
	queued := d.Async(QoSMain, func(ctx context.Context) {})
	<-started

	err := d.ShutdownGraceful(50 * time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Contains(t, err.Error(), "dispatch.main")
	assert.Equal(t, TaskCancelled, queued.State())
	assert.True(t, queued.Rejected())
}

func TestDispatcher_NilTaskPanics(t *testing.T) {
	d := newTestDispatcher(t, nil)

	assert.PanicsWithValue(t, "dispatch: nil task", func() { d.Async(QoSMain, nil) })
	assert.PanicsWithValue(t, "dispatch: nil task", func() { d.NewGroup().Submit(QoSMain, nil) })
	assert.Panics(t, func() { d.ParallelFor(1, QoSMain, nil) })
}
