package core

import (
	"sync"

	"github.com/gammazero/deque"
)

const defaultTaskHistoryCapacity = 100

// executionHistory keeps the newest records at the front and drops from the
// back once capacity is reached.
type executionHistory struct {
	mu       sync.Mutex
	records  deque.Deque[TaskExecutionRecord]
	capacity int
}

func newExecutionHistory(capacity int) *executionHistory {
	if capacity < 1 {
		capacity = defaultTaskHistoryCapacity
	}
	return &executionHistory{capacity: capacity}
}

func (h *executionHistory) Add(record TaskExecutionRecord) {
	h.mu.Lock()
	h.records.PushFront(record)
	if h.records.Len() > h.capacity {
		h.records.PopBack()
	}
	h.mu.Unlock()
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (h *executionHistory) Recent(limit int) []TaskExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.records.Len()
	if n == 0 {
		return nil
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]TaskExecutionRecord, limit)
	for i := range out {
		out[i] = h.records.At(i)
	}
	return out
}

func (h *executionHistory) Last() (TaskExecutionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.records.Len() == 0 {
		return TaskExecutionRecord{}, false
	}
	return h.records.Front(), true
}
