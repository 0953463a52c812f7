package core

// SerialQueue binds a dedicated goroutine, locked to its OS thread, to execute
// tasks one at a time in submission order.
//
// Use cases:
// 1. The dispatcher's main queue (UI thread style affinity)
// 2. CGO calls that require Thread Local Storage
// 3. Serializing access to state without a mutex
//
// A task that blocks stalls every task queued behind it.
type SerialQueue struct {
	*workerQueue
}

// NewSerialQueue creates and starts a serial queue.
func NewSerialQueue(label string, config *QueueConfig) *SerialQueue {
	q := &SerialQueue{workerQueue: newWorkerQueue(label, "serial", 1, true, config)}
	q.start(q)
	return q
}

// Serial returns true.
func (q *SerialQueue) Serial() bool {
	return true
}
