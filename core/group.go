package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TaskGroup counts outstanding work and lets callers wait until it drains.
//
// Enter and Leave must be balanced: a Leave without a matching Enter is a
// programming error and panics. Submit performs the pairing itself.
type TaskGroup struct {
	d     *Dispatcher
	count atomic.Int64

	mu      sync.Mutex
	drained chan struct{} // closed while count == 0
}

// NewGroup returns an empty group whose Submit resolves QoS classes through d.
func (d *Dispatcher) NewGroup() *TaskGroup {
	drained := make(chan struct{})
	close(drained)
	return &TaskGroup{d: d, drained: drained}
}

// Enter records one unit of outstanding work.
func (g *TaskGroup) Enter() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.count.Add(1) == 1 {
		g.drained = make(chan struct{})
	}
}

// Leave records that one unit of work finished. It panics if the count
// would drop below zero.
func (g *TaskGroup) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.count.Load() == 0 {
		g.d.logger.Error("TaskGroup.Leave called without matching Enter")
		panic("dispatch: negative TaskGroup counter")
	}
	if g.count.Add(-1) == 0 {
		close(g.drained)
	}
}

// Submit enters g, runs task on qos and leaves g when task returns or panics.
// If the queue rejects the task, g is left immediately.
func (g *TaskGroup) Submit(qos QoS, task Task) {
	if task == nil {
		panic("dispatch: nil task")
	}
	g.Enter()

	wrapped := func(ctx context.Context) {
		ctx, span := g.d.startSpan(ctx, "dispatch.group.task", qos)
		ok := false
		defer func() {
			endSpan(span, ok)
			g.Leave()
		}()
		task(ctx)
		ok = true
	}
	if !submitTask(g.d.Resolve(qos), wrapped, g.Leave) {
		g.Leave()
	}
}

// Wait blocks until the count reaches zero or timeout elapses. A zero
// timeout waits forever; a negative timeout only polls. It reports whether
// the group drained.
func (g *TaskGroup) Wait(timeout time.Duration) bool {
	return waitDone(g.current(), timeout)
}

// WaitContext blocks until the count reaches zero or ctx is done.
func (g *TaskGroup) WaitContext(ctx context.Context) error {
	select {
	case <-g.current():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the number of outstanding units of work.
func (g *TaskGroup) Count() int {
	return int(g.count.Load())
}

func (g *TaskGroup) current() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.drained
}
