package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-dispatch/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type queueStub struct {
	stats core.QueueStats
}

func (s queueStub) Stats() core.QueueStats { return s.stats }

type dispatcherStub struct {
	stats core.DispatcherStats
}

func (s dispatcherStub) Stats() core.DispatcherStats { return s.stats }

func TestSnapshotPoller_CollectsQueueAndDispatcherStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("", reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddQueue("io", queueStub{stats: core.QueueStats{
		Label:    "io",
		Type:     "serial",
		Workers:  1,
		Queued:   3,
		Active:   1,
		Rejected: 2,
		Closed:   true,
	}})
	poller.AddDispatcher("app", dispatcherStub{stats: core.DispatcherStats{
		Queues: []core.QueueStats{
			{Label: "dispatch.main", Type: "serial", Workers: 1, Executed: 9},
			{Label: "dispatch.utility", Type: "concurrent", Workers: 8, Overflow: 3, Queued: 4, Active: 2, Panicked: 1},
		},
		Delayed: 5,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		queued := testutil.ToFloat64(poller.queueQueued.WithLabelValues("", "io", "serial"))
		active := testutil.ToFloat64(poller.queueActive.WithLabelValues("app", "dispatch.utility", "concurrent"))
		return queued == 3 && active == 2
	})

	if got := testutil.ToFloat64(poller.queueClosed.WithLabelValues("", "io", "serial")); got != 1 {
		t.Fatalf("queue closed gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.queueExecuted.WithLabelValues("app", "dispatch.main", "serial")); got != 9 {
		t.Fatalf("executed gauge = %v, want 9", got)
	}
	if got := testutil.ToFloat64(poller.queueOverflow.WithLabelValues("app", "dispatch.utility", "concurrent")); got != 3 {
		t.Fatalf("overflow gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(poller.queuePanicked.WithLabelValues("app", "dispatch.utility", "concurrent")); got != 1 {
		t.Fatalf("panicked gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.dispatcherDelayed.WithLabelValues("app")); got != 5 {
		t.Fatalf("delayed gauge = %v, want 5", got)
	}
	if got := testutil.ToFloat64(poller.dispatcherClosed.WithLabelValues("app")); got != 0 {
		t.Fatalf("dispatcher closed gauge = %v, want 0", got)
	}
}

// TestSnapshotPoller_RealDispatcher tests polling a live Dispatcher
// Given: a Dispatcher with one delayed task pending and one task executed on Main
// When: CollectOnce runs
// Then: the delayed and executed gauges reflect the dispatcher's state
func TestSnapshotPoller_RealDispatcher(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("dispatch", reg, time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	d := core.NewDispatcher(core.Options{QueueConfig: &core.QueueConfig{Logger: core.NewNoOpLogger()}})
	defer d.Shutdown()
	poller.AddDispatcher("default", d)
	custom := core.NewSerialQueue("custom", &core.QueueConfig{Logger: core.NewNoOpLogger()})
	defer custom.Shutdown()
	poller.AddQueue("custom", custom)

	d.Async(core.QoSMain, func(ctx context.Context) {}).Wait(time.Second)
	delayed := d.AsyncAfter(core.QoSBackground, time.Hour, func(ctx context.Context) {})
	defer delayed.Cancel()

	assertEventually(t, 2*time.Second, func() bool {
		poller.CollectOnce()
		executed := testutil.ToFloat64(poller.queueExecuted.WithLabelValues("default", "dispatch.main", "serial"))
		pending := testutil.ToFloat64(poller.dispatcherDelayed.WithLabelValues("default"))
		return executed == 1 && pending == 1
	})

	if got := testutil.ToFloat64(poller.queueWorkers.WithLabelValues("", "custom", "serial")); got != 1 {
		t.Fatalf("custom queue workers = %v, want 1", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("", reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()

	// Restart after Stop.
	poller.Start(ctx)
	poller.Stop()
}

func TestSnapshotPoller_SharedRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	if _, err := NewSnapshotPoller("dispatch", reg, time.Second); err != nil {
		t.Fatalf("first NewSnapshotPoller failed: %v", err)
	}
	if _, err := NewSnapshotPoller("dispatch", reg, time.Second); err != nil {
		t.Fatalf("second NewSnapshotPoller failed: %v", err)
	}
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
