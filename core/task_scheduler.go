package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrShutdownTimeout is returned (wrapped) when a graceful shutdown could not
// drain queued work before its deadline.
var ErrShutdownTimeout = errors.New("dispatch: graceful shutdown timed out")

const gracefulPollInterval = 10 * time.Millisecond

// TaskScheduler owns a queue's pending tasks and hands them to workers.
// It never blocks submitters: the backlog is an unbounded FIFO and workers are
// woken through a buffered signal channel.
type TaskScheduler struct {
	label       string
	queue       *FIFOTaskQueue
	signal      chan struct{}
	workerCount int

	metricActive atomic.Int32 // Executing in Worker
	executed     atomic.Int64
	panicked     atomic.Int64
	rejected     atomic.Int64

	idle     atomic.Int32 // workers parked in GetWork
	started  atomic.Int64 // tasks handed out, the progress counter
	overflow atomic.Int32 // overflow workers alive

	// stalled is signalled when tasks are queued and no worker is idle.
	stalled chan struct{}

	config  QueueConfig
	history *executionHistory

	// Lifecycle
	postMu       sync.RWMutex
	shuttingDown atomic.Bool
}

func NewTaskScheduler(label string, workerCount int, config *QueueConfig) *TaskScheduler {
	cfg := config.withDefaults()
	return &TaskScheduler{
		label:       label,
		queue:       NewFIFOTaskQueue(),
		signal:      make(chan struct{}, workerCount*2),
		workerCount: workerCount,
		stalled:     make(chan struct{}, 1),
		config:      cfg,
		history:     newExecutionHistory(cfg.HistoryCapacity),
	}
}

// PostInternal queues item. It returns false, after notifying the
// RejectedTaskHandler, once the scheduler is shutting down.
func (s *TaskScheduler) PostInternal(item TaskItem) bool {
	s.postMu.RLock()
	if s.shuttingDown.Load() {
		s.postMu.RUnlock()
		s.reject("shutting down")
		return false
	}
	s.queue.Push(item)
	s.postMu.RUnlock()

	s.config.Metrics.RecordQueueDepth(s.label, s.queue.Len())
	s.noteBacklog()

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full, but task is already queued
	}
	return true
}

// GetWork blocks until a task is available or stopCh is closed.
// The active counter is raised before the pop so a task in flight is never
// invisible to ShutdownGraceful.
func (s *TaskScheduler) GetWork(stopCh <-chan struct{}) (TaskItem, bool) {
	for {
		if item, ok := s.TryGetWork(); ok {
			return item, true
		}

		s.idle.Add(1)
		select {
		case <-s.signal:
			s.idle.Add(-1)
		case <-stopCh:
			s.idle.Add(-1)
			return TaskItem{}, false
		}
	}
}

// TryGetWork pops the next task without waiting. A task it returns counts as
// active until RunTask finishes it.
func (s *TaskScheduler) TryGetWork() (TaskItem, bool) {
	s.metricActive.Add(1)
	item, ok := s.queue.Pop()
	if !ok {
		s.metricActive.Add(-1)
		return TaskItem{}, false
	}
	s.started.Add(1)
	s.noteBacklog()
	return item, true
}

// noteBacklog signals stalled when work is queued and no worker is parked to take it.
func (s *TaskScheduler) noteBacklog() {
	if s.idle.Load() > 0 || s.queue.Len() == 0 {
		return
	}
	select {
	case s.stalled <- struct{}{}:
	default:
	}
}

// starved reports whether the backlog made no progress since the started
// count was last observed as seen.
func (s *TaskScheduler) starved(seen int64) bool {
	return s.started.Load() == seen && s.idle.Load() == 0 && s.queue.Len() > 0
}

// RunTask executes a task obtained from GetWork, recovering and reporting panics.
func (s *TaskScheduler) RunTask(ctx context.Context, workerID int, task Task) {
	startedAt := time.Now()
	panicked := false

	defer func() {
		if r := recover(); r != nil {
			panicked = true
			s.panicked.Add(1)
			s.config.PanicHandler.HandlePanic(ctx, s.label, workerID, r, debug.Stack())
			s.config.Metrics.RecordTaskPanic(s.label, r)
		}

		finishedAt := time.Now()
		s.executed.Add(1)
		s.metricActive.Add(-1)
		s.config.Metrics.RecordTaskDuration(s.label, finishedAt.Sub(startedAt))
		s.history.Add(TaskExecutionRecord{
			Queue:      s.label,
			WorkerID:   workerID,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   finishedAt.Sub(startedAt),
			Panicked:   panicked,
		})
	}()

	task(ctx)
}

func (s *TaskScheduler) reject(reason string) {
	s.rejected.Add(1)
	s.config.RejectedTaskHandler.HandleRejectedTask(s.label, reason)
	s.config.Metrics.RecordTaskRejected(s.label, reason)
}

func (s *TaskScheduler) markShuttingDown() {
	s.postMu.Lock()
	s.shuttingDown.Store(true)
	s.postMu.Unlock()
}

// dropQueued discards every queued task, notifying their drop callbacks.
func (s *TaskScheduler) dropQueued(reason string) {
	for _, item := range s.queue.Drain() {
		s.reject(reason)
		if item.OnDrop != nil {
			item.OnDrop()
		}
	}
}

// Shutdown stops accepting tasks and discards the backlog.
func (s *TaskScheduler) Shutdown() {
	s.markShuttingDown()
	s.dropQueued("shutdown")
}

// ShutdownGraceful stops accepting tasks and waits for queued and active tasks
// to complete. On timeout the remaining backlog is discarded.
func (s *TaskScheduler) ShutdownGraceful(timeout time.Duration) error {
	s.markShuttingDown()

	deadline := time.After(timeout)
	ticker := time.NewTicker(gracefulPollInterval)
	defer ticker.Stop()

	for {
		if s.QueuedTaskCount() == 0 && s.ActiveTaskCount() == 0 {
			return nil
		}
		select {
		case <-deadline:
			s.dropQueued("shutdown timeout")
			return fmt.Errorf("%w: queue %s after %v", ErrShutdownTimeout, s.label, timeout)
		case <-ticker.C:
		}
	}
}

// Metrics
func (s *TaskScheduler) WorkerCount() int     { return s.workerCount }
func (s *TaskScheduler) QueuedTaskCount() int { return s.queue.Len() }
func (s *TaskScheduler) ActiveTaskCount() int { return int(s.metricActive.Load()) }
func (s *TaskScheduler) IsShuttingDown() bool { return s.shuttingDown.Load() }

func (s *TaskScheduler) stats(kind string) QueueStats {
	stats := QueueStats{
		Label:    s.label,
		Type:     kind,
		Workers:  s.workerCount,
		Overflow: int(s.overflow.Load()),
		Queued:   s.QueuedTaskCount(),
		Active:   s.ActiveTaskCount(),
		Executed: s.executed.Load(),
		Panicked: s.panicked.Load(),
		Rejected: s.rejected.Load(),
		Closed:   s.IsShuttingDown(),
	}
	if last, ok := s.history.Last(); ok {
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}
