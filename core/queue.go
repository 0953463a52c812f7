package core

import (
	"sync"

	"github.com/gammazero/deque"
)

// Queue is an execution context tasks are submitted to.
//
// A serial queue runs its tasks one at a time in submission order; a
// concurrent queue runs them on several workers with no ordering between
// distinct submissions. Submit must never block the caller.
type Queue interface {
	// Label names the queue in logs, metrics and QoS descriptions.
	Label() string

	// Serial reports whether the queue executes tasks strictly FIFO, one at a time.
	Serial() bool

	// Submit enqueues task. It returns false if the queue no longer accepts work.
	Submit(task Task) bool

	// Stats returns a snapshot of the queue's counters.
	Stats() QueueStats
}

// droppableQueue is implemented by queues that report tasks they accepted but
// discarded at shutdown without running them.
type droppableQueue interface {
	submitDroppable(task Task, onDrop func()) bool
}

// submitTask submits task to q. onDrop runs if q accepted the task and later
// discarded it; it is not called when submitTask itself returns false.
func submitTask(q Queue, task Task, onDrop func()) bool {
	if dq, ok := q.(droppableQueue); ok {
		return dq.submitDroppable(task, onDrop)
	}
	return q.Submit(task)
}

type TaskItem struct {
	Task   Task
	OnDrop func()
}

// =============================================================================
// FIFOTaskQueue: unbounded FIFO backed by a ring-buffer deque
// =============================================================================

type FIFOTaskQueue struct {
	mu    sync.Mutex
	tasks deque.Deque[TaskItem]
}

func NewFIFOTaskQueue() *FIFOTaskQueue {
	return &FIFOTaskQueue{}
}

func (q *FIFOTaskQueue) Push(item TaskItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks.PushBack(item)
}

func (q *FIFOTaskQueue) Pop() (TaskItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tasks.Len() == 0 {
		return TaskItem{}, false
	}
	return q.tasks.PopFront(), true
}

func (q *FIFOTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

func (q *FIFOTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Drain removes every queued item and returns them in FIFO order.
func (q *FIFOTaskQueue) Drain() []TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]TaskItem, 0, q.tasks.Len())
	for q.tasks.Len() > 0 {
		items = append(items, q.tasks.PopFront())
	}
	return items
}
