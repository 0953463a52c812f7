package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TaskState is the lifecycle state of a TaskHandle.
type TaskState int32

const (
	// TaskPending: created, not yet picked up by a worker.
	TaskPending TaskState = iota
	// TaskRunning: a worker is executing the work.
	TaskRunning
	// TaskCompleted: the work returned (or panicked).
	TaskCompleted
	// TaskCancelled: the work will never run.
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type continuation struct {
	handle *TaskHandle
	delay  time.Duration
}

// TaskHandle refers to one scheduled unit of work.
//
// A handle moves Pending -> Running -> Completed, or Pending -> Cancelled,
// and never leaves Completed or Cancelled. All methods are safe for
// concurrent use.
type TaskHandle struct {
	id  TaskID
	qos QoS
	d   *Dispatcher

	state    atomic.Int32
	rejected atomic.Bool
	done     chan struct{}

	mu          sync.Mutex
	task        Task
	next        []continuation
	completedAt time.Time
}

func newTaskHandle(d *Dispatcher, qos QoS, task Task) *TaskHandle {
	if task == nil {
		panic("dispatch: nil task")
	}
	return &TaskHandle{
		id:   GenerateTaskID(),
		qos:  qos,
		d:    d,
		task: task,
		done: make(chan struct{}),
	}
}

// Async submits task to the queue qos resolves to and returns immediately.
func (d *Dispatcher) Async(qos QoS, task Task) *TaskHandle {
	h := newTaskHandle(d, qos, task)
	h.start(0)
	return h
}

// AsyncAfter submits task once delay has elapsed. delay <= 0 behaves as Async.
func (d *Dispatcher) AsyncAfter(qos QoS, delay time.Duration, task Task) *TaskHandle {
	h := newTaskHandle(d, qos, task)
	h.start(delay)
	return h
}

// start hands h to its queue, directly or through the delay manager.
func (h *TaskHandle) start(delay time.Duration) {
	q := h.d.Resolve(h.qos)
	if delay <= 0 {
		if !submitTask(q, h.run, h.reject) {
			h.reject()
		}
		return
	}
	if !h.d.delays.AddDelayedTask(h.run, delay, q, h.reject) {
		h.reject()
	}
}

func (h *TaskHandle) run(ctx context.Context) {
	if !h.state.CompareAndSwap(int32(TaskPending), int32(TaskRunning)) {
		// Cancelled while queued.
		return
	}
	task := h.task

	ctx, span := h.d.startSpan(ctx, "dispatch.task", h.qos, attrTaskID.String(h.id.String()))
	ok := false
	defer func() {
		endSpan(span, ok)
		h.finish()
	}()

	task(ctx)
	ok = true
}

// finish marks h Completed, wakes waiters and starts continuations.
func (h *TaskHandle) finish() {
	h.mu.Lock()
	h.state.Store(int32(TaskCompleted))
	h.completedAt = time.Now()
	next := h.next
	h.next = nil
	h.task = nil
	h.mu.Unlock()

	close(h.done)

	for _, c := range next {
		c.handle.start(c.delay)
	}
}

// Cancel prevents the work from running if it has not started yet.
// Cancelling a running, completed or already cancelled handle does nothing.
// Continuations registered with Then never start once h is cancelled.
func (h *TaskHandle) Cancel() {
	if h.cancel(false) {
		h.d.config.Metrics.RecordTaskCancelled(h.d.Resolve(h.qos).Label())
	}
}

func (h *TaskHandle) reject() {
	h.cancel(true)
}

func (h *TaskHandle) cancel(rejected bool) bool {
	h.mu.Lock()
	if !h.state.CompareAndSwap(int32(TaskPending), int32(TaskCancelled)) {
		h.mu.Unlock()
		return false
	}
	if rejected {
		h.rejected.Store(true)
	}
	h.next = nil
	h.task = nil
	h.mu.Unlock()

	close(h.done)
	return true
}

// Then chains task to run on qos after h completes.
//
// If h is cancelled, or rejected at shutdown, the returned handle never
// starts and stays Pending: Wait(0) and WaitContext without a deadline on it
// block forever. Wait on h first, or bound the wait, when h may be cancelled.
func (h *TaskHandle) Then(qos QoS, task Task) *TaskHandle {
	return h.ThenAfter(qos, 0, task)
}

// ThenAfter chains task to run on qos once delay has elapsed after h
// completes. If h already completed, only the remainder of delay is waited.
// The returned handle is independent: cancelling it does not affect h. As
// with Then, it stays Pending forever if h never completes.
func (h *TaskHandle) ThenAfter(qos QoS, delay time.Duration, task Task) *TaskHandle {
	succ := newTaskHandle(h.d, qos, task)

	h.mu.Lock()
	switch TaskState(h.state.Load()) {
	case TaskCompleted:
		remaining := delay - time.Since(h.completedAt)
		h.mu.Unlock()
		succ.start(remaining)
		return succ
	case TaskCancelled:
		h.mu.Unlock()
		return succ
	}
	h.next = append(h.next, continuation{handle: succ, delay: delay})
	h.mu.Unlock()
	return succ
}

// Wait blocks until h completes or is cancelled, or timeout elapses.
// A zero timeout waits forever; a negative timeout only polls.
// It reports whether h finished.
func (h *TaskHandle) Wait(timeout time.Duration) bool {
	return waitDone(h.done, timeout)
}

// WaitContext blocks until h completes or is cancelled, or ctx is done.
func (h *TaskHandle) WaitContext(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when h completes or is cancelled.
func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

// State returns the current lifecycle state.
func (h *TaskHandle) State() TaskState {
	return TaskState(h.state.Load())
}

// Rejected reports whether h was cancelled because its queue or the
// dispatcher no longer accepted work.
func (h *TaskHandle) Rejected() bool {
	return h.rejected.Load()
}

// ID returns the handle's unique identifier.
func (h *TaskHandle) ID() TaskID {
	return h.id
}

// QoS returns the class h was submitted with.
func (h *TaskHandle) QoS() QoS {
	return h.qos
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	switch {
	case timeout == 0:
		<-done
		return true
	case timeout < 0:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
