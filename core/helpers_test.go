package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

// newTestDispatcher returns a quiet dispatcher that is shut down with the test.
func newTestDispatcher(t *testing.T, cfg *QueueConfig) *Dispatcher {
	t.Helper()
	if cfg == nil {
		cfg = &QueueConfig{}
	}
	if cfg.Logger == nil {
		cfg.Logger = NewNoOpLogger()
	}
	d := NewDispatcher(Options{
		UserInteractiveWorkers: 4,
		UserInitiatedWorkers:   4,
		UtilityWorkers:         2,
		BackgroundWorkers:      2,
		QueueConfig:            cfg,
	})
	t.Cleanup(d.Shutdown)
	return d
}

// =============================================================================
// testPanicHandler
// =============================================================================

type panicCall struct {
	Queue     string
	WorkerID  int
	PanicInfo any
}

type testPanicHandler struct {
	mu    sync.Mutex
	calls []panicCall
}

func (h *testPanicHandler) HandlePanic(ctx context.Context, queueName string, workerID int, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, panicCall{Queue: queueName, WorkerID: workerID, PanicInfo: panicInfo})
}

func (h *testPanicHandler) Calls() []panicCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]panicCall(nil), h.calls...)
}

// =============================================================================
// testMetrics
// =============================================================================

type testMetrics struct {
	mu        sync.Mutex
	durations map[string]int
	panics    map[string]int
	depths    map[string]int
	rejected  map[string][]string
	cancelled map[string]int
}

func newTestMetrics() *testMetrics {
	return &testMetrics{
		durations: make(map[string]int),
		panics:    make(map[string]int),
		depths:    make(map[string]int),
		rejected:  make(map[string][]string),
		cancelled: make(map[string]int),
	}
}

func (m *testMetrics) RecordTaskDuration(queueName string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[queueName]++
}

func (m *testMetrics) RecordTaskPanic(queueName string, panicInfo any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics[queueName]++
}

func (m *testMetrics) RecordQueueDepth(queueName string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths[queueName] = depth
}

func (m *testMetrics) RecordTaskRejected(queueName string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[queueName] = append(m.rejected[queueName], reason)
}

func (m *testMetrics) RecordTaskCancelled(queueName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled[queueName]++
}

func (m *testMetrics) Executed(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.durations[queue]
}

func (m *testMetrics) Panics(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.panics[queue]
}

func (m *testMetrics) Rejected(queue string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rejected[queue]...)
}

func (m *testMetrics) Cancelled(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled[queue]
}

// =============================================================================
// recordingLogger
// =============================================================================

type logEntry struct {
	Level  string
	Msg    string
	Fields []Field
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{Level: level, Msg: msg, Fields: fields})
}

func (l *recordingLogger) Debug(msg string, fields ...Field) { l.add("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...Field)  { l.add("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...Field)  { l.add("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...Field) { l.add("error", msg, fields) }

func (l *recordingLogger) Count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Level == level && e.Msg == msg {
			n++
		}
	}
	return n
}
