package core

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const defaultStallTimeout = 100 * time.Millisecond

// workerQueue manages a set of worker goroutines pulling from a TaskScheduler.
// ConcurrentQueue and SerialQueue are thin shells around it.
type workerQueue struct {
	scheduler *TaskScheduler
	kind      string
	lockOS    bool
	elastic   bool

	overflowSeq atomic.Int64

	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func newWorkerQueue(label, kind string, workers int, lockOS bool, config *QueueConfig) *workerQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &workerQueue{
		scheduler: NewTaskScheduler(label, workers, config),
		kind:      kind,
		lockOS:    lockOS,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// start launches the workers; self is the Queue exposed to tasks through CurrentQueue.
func (q *workerQueue) start(self Queue) {
	runCtx := withQueue(q.ctx, self)
	for i := 0; i < q.scheduler.WorkerCount(); i++ {
		q.wg.Add(1)
		go q.workerLoop(runCtx, i)
	}
	if q.elastic {
		q.wg.Add(1)
		go q.monitor(runCtx)
	}
	q.scheduler.config.Logger.Debug("queue started",
		F("queue", q.scheduler.label),
		F("type", q.kind),
		F("workers", q.scheduler.WorkerCount()),
	)
}

// workerLoop is the main loop for each worker
func (q *workerQueue) workerLoop(ctx context.Context, id int) {
	defer q.wg.Done()
	if q.lockOS {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	stopCh := ctx.Done()

	for {
		item, ok := q.scheduler.GetWork(stopCh)
		if !ok {
			return
		}
		q.scheduler.RunTask(ctx, id, item.Task)
	}
}

// monitor adds an overflow worker whenever the backlog stops moving: tasks
// are queued, no worker is idle and none has started within StallTimeout.
// Tasks that block on other work in the same queue therefore cannot starve it.
func (q *workerQueue) monitor(ctx context.Context) {
	defer q.wg.Done()
	s := q.scheduler

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stalled:
		}

		for s.QueuedTaskCount() > 0 {
			seen := s.started.Load()
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.config.StallTimeout):
			}
			if s.starved(seen) {
				q.grow(ctx)
			}
		}
	}
}

// grow starts one overflow worker. It is only called from monitor, which
// holds a wg slot, so the Add never races stopWorkers.
func (q *workerQueue) grow(ctx context.Context) {
	id := q.scheduler.WorkerCount() + int(q.overflowSeq.Add(1)) - 1
	q.scheduler.overflow.Add(1)
	q.wg.Add(1)
	go q.overflowLoop(ctx, id)
	q.scheduler.config.Logger.Debug("queue stalled, overflow worker added",
		F("queue", q.scheduler.label),
		F("worker", id),
		F("queued", q.scheduler.QueuedTaskCount()),
	)
}

// overflowLoop runs queued tasks until the backlog is empty, then exits.
func (q *workerQueue) overflowLoop(ctx context.Context, id int) {
	defer q.wg.Done()
	defer q.scheduler.overflow.Add(-1)

	for {
		item, ok := q.scheduler.TryGetWork()
		if !ok {
			return
		}
		q.scheduler.RunTask(ctx, id, item.Task)
	}
}

// Label returns the queue label
func (q *workerQueue) Label() string {
	return q.scheduler.label
}

// Submit enqueues task; it returns false after shutdown.
func (q *workerQueue) Submit(task Task) bool {
	if task == nil {
		panic("dispatch: nil task")
	}
	return q.scheduler.PostInternal(TaskItem{Task: task})
}

func (q *workerQueue) submitDroppable(task Task, onDrop func()) bool {
	if task == nil {
		panic("dispatch: nil task")
	}
	return q.scheduler.PostInternal(TaskItem{Task: task, OnDrop: onDrop})
}

// Stats returns current observability data for this queue.
func (q *workerQueue) Stats() QueueStats {
	return q.scheduler.stats(q.kind)
}

// RecentTasks returns completed task execution records in newest-first order.
func (q *workerQueue) RecentTasks(limit int) []TaskExecutionRecord {
	return q.scheduler.history.Recent(limit)
}

// WorkerCount returns the number of steady workers, excluding overflow workers.
func (q *workerQueue) WorkerCount() int {
	return q.scheduler.WorkerCount()
}

// IsClosed reports whether the queue stopped accepting work.
func (q *workerQueue) IsClosed() bool {
	return q.scheduler.IsShuttingDown()
}

// Shutdown rejects new tasks, discards queued ones and waits for running
// tasks to return. It must not be called from a task running on this queue.
func (q *workerQueue) Shutdown() {
	q.scheduler.Shutdown()
	q.stopWorkers()
}

// ShutdownGraceful rejects new tasks and waits up to timeout for the backlog
// to drain before stopping the workers.
func (q *workerQueue) ShutdownGraceful(timeout time.Duration) error {
	err := q.scheduler.ShutdownGraceful(timeout)
	q.stopWorkers()
	return err
}

func (q *workerQueue) stopWorkers() {
	q.stopOnce.Do(func() {
		q.cancel()
		q.wg.Wait()
		q.scheduler.config.Logger.Debug("queue stopped", F("queue", q.scheduler.label))
	})
}

// =============================================================================
// ConcurrentQueue
// =============================================================================

// ConcurrentQueue runs tasks on worker goroutines with no ordering guarantee
// between submissions. workers is the steady concurrency, not a cap: when
// every worker is blocked and the backlog has not moved for
// QueueConfig.StallTimeout, an overflow worker is added until the backlog
// drains. A task may therefore wait on other work submitted to the same queue.
type ConcurrentQueue struct {
	*workerQueue
}

// NewConcurrentQueue creates and starts a queue with the given number of workers.
// Panics if workers < 1.
func NewConcurrentQueue(label string, workers int, config *QueueConfig) *ConcurrentQueue {
	if workers < 1 {
		panic("dispatch: ConcurrentQueue needs at least one worker")
	}
	q := &ConcurrentQueue{workerQueue: newWorkerQueue(label, "concurrent", workers, false, config)}
	q.elastic = true
	q.start(q)
	return q
}

// Serial returns false.
func (q *ConcurrentQueue) Serial() bool {
	return false
}
