package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// DelayedTask represents a task scheduled for the future
type DelayedTask struct {
	RunAt  time.Time
	Task   Task
	Target Queue
	OnDrop func()
	index  int // for heap interface
}

// DelayedTaskHeap implements heap.Interface
type DelayedTaskHeap []*DelayedTask

func (h DelayedTaskHeap) Len() int           { return len(h) }
func (h DelayedTaskHeap) Less(i, j int) bool { return h[i].RunAt.Before(h[j].RunAt) }
func (h DelayedTaskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *DelayedTaskHeap) Push(x any) {
	n := len(*h)
	item := x.(*DelayedTask)
	item.index = n
	*h = append(*h, item)
}

func (h *DelayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *DelayedTaskHeap) Peek() *DelayedTask {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// DelayManager holds tasks until their deadline and then submits them to
// their target queue. One goroutine and one timer serve every pending task.
type DelayManager struct {
	pq     DelayedTaskHeap
	mu     sync.Mutex
	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	stop   sync.Once

	maxIdle time.Duration
	logger  Logger
}

// NewDelayManager starts a delay manager. maxIdle bounds how long the loop
// sleeps when nothing is pending; <= 0 means one hour.
func NewDelayManager(maxIdle time.Duration, logger Logger) *DelayManager {
	if maxIdle <= 0 {
		maxIdle = time.Hour
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayManager{
		pq:      make(DelayedTaskHeap, 0),
		wakeup:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		maxIdle: maxIdle,
		logger:  logger,
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

// AddDelayedTask submits task to target once delay has elapsed. onDrop runs
// when the task will never reach a worker: target rejected it, discarded it,
// or the manager stopped first. It returns false if the manager is stopped.
func (dm *DelayManager) AddDelayedTask(task Task, delay time.Duration, target Queue, onDrop func()) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.ctx.Err() != nil {
		return false
	}

	item := &DelayedTask{
		RunAt:  time.Now().Add(delay),
		Task:   task,
		Target: target,
		OnDrop: onDrop,
	}
	heap.Push(&dm.pq, item)

	if item.index == 0 {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
	return true
}

func (dm *DelayManager) loop() {
	defer close(dm.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		timer.Reset(dm.nextWait())

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			// Timer fired, process all expired tasks in one go
			dm.processExpiredTasks()
		case <-dm.wakeup:
			// New earliest task, recalculate
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// nextWait returns how long to sleep before the earliest task is due.
func (dm *DelayManager) nextWait() time.Duration {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return dm.maxIdle
	}
	wait := time.Until(item.RunAt)
	if wait < 0 {
		return 0
	}
	return wait
}

// processExpiredTasks submits every task whose deadline has passed.
func (dm *DelayManager) processExpiredTasks() {
	dm.mu.Lock()

	now := time.Now()
	// Collect all expired tasks to avoid holding lock while posting
	var expired []*DelayedTask

	for dm.pq.Len() > 0 {
		item := dm.pq.Peek()
		if item.RunAt.After(now) {
			break
		}
		heap.Pop(&dm.pq)
		expired = append(expired, item)
	}

	dm.mu.Unlock()

	for _, item := range expired {
		if !submitTask(item.Target, item.Task, item.OnDrop) {
			dm.logger.Debug("delayed task rejected by target", F("queue", item.Target.Label()))
			if item.OnDrop != nil {
				item.OnDrop()
			}
		}
	}
}

// Stop terminates the timer loop and drops every pending task.
func (dm *DelayManager) Stop() {
	dm.stop.Do(func() {
		dm.mu.Lock()
		dm.cancel()
		pending := dm.pq
		dm.pq = make(DelayedTaskHeap, 0)
		heap.Init(&dm.pq)
		dm.mu.Unlock()

		<-dm.done

		for _, item := range pending {
			if item.OnDrop != nil {
				item.OnDrop()
			}
		}
		if len(pending) > 0 {
			dm.logger.Debug("delay manager dropped pending tasks", F("count", len(pending)))
		}
	})
}

// TaskCount returns the number of tasks waiting for their deadline.
func (dm *DelayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}
