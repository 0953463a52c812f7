package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	Queue      string
	WorkerID   int
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// QueueStats represents runtime observability state for a queue.
type QueueStats struct {
	Label      string
	Type       string
	Workers    int
	Overflow   int // workers added beyond Workers while the queue was stalled
	Queued     int
	Active     int
	Executed   int64
	Panicked   int64
	Rejected   int64
	Closed     bool
	LastTaskAt time.Time
}

// DispatcherStats aggregates the stats of a Dispatcher's built-in queues.
type DispatcherStats struct {
	Queues  []QueueStats
	Delayed int
	Closed  bool
}
