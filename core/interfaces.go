package core

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task
	// - queueName: The label of the queue where the panic occurred
	// - workerID: The ID of the worker that ran the task (0 for serial queues)
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, queueName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics at error level.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic and its stack trace.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, queueName string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("queue", queueName),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute on queueName.
	RecordTaskDuration(queueName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(queueName string, panicInfo any)

	// RecordQueueDepth records the number of tasks waiting in queueName.
	RecordQueueDepth(queueName string, depth int)

	// RecordTaskRejected records that a task was rejected (e.g., during shutdown).
	RecordTaskRejected(queueName string, reason string)

	// RecordTaskCancelled records that a pending task was cancelled before it started.
	RecordTaskCancelled(queueName string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(queueName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(queueName string, panicInfo any)             {}
func (m *NilMetrics) RecordQueueDepth(queueName string, depth int)                {}
func (m *NilMetrics) RecordTaskRejected(queueName string, reason string)          {}
func (m *NilMetrics) RecordTaskCancelled(queueName string)                        {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a queue refuses or discards a task,
// which happens once the queue has been shut down.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(queueName string, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks at warn level, at most
// perSecond lines per second so a shutdown storm does not flood the log.
type DefaultRejectedTaskHandler struct {
	logger  Logger
	limiter *rate.Limiter
}

// NewDefaultRejectedTaskHandler creates a rate limited rejection logger.
// perSecond <= 0 defaults to 1.
func NewDefaultRejectedTaskHandler(logger Logger, perSecond int) *DefaultRejectedTaskHandler {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	return &DefaultRejectedTaskHandler{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// HandleRejectedTask logs the rejected task unless the log budget is exhausted.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(queueName string, reason string) {
	if !h.limiter.Allow() {
		return
	}
	h.logger.Warn("task rejected", F("queue", queueName), F("reason", reason))
}

// =============================================================================
// QueueConfig: Configuration shared by queues
// =============================================================================

// QueueConfig holds configuration options for SerialQueue and ConcurrentQueue.
// All handlers are optional; if not provided, default implementations will be used.
type QueueConfig struct {
	// Logger receives lifecycle and rejection logs. Defaults to NewDefaultLogger().
	Logger Logger

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// HistoryCapacity bounds RecentTasks. Defaults to 100.
	HistoryCapacity int

	// StallTimeout is how long a ConcurrentQueue may hold a backlog with every
	// worker busy and no task starting before it adds an overflow worker.
	// Defaults to 100ms.
	StallTimeout time.Duration
}

// DefaultQueueConfig returns a config with default handlers.
func DefaultQueueConfig() *QueueConfig {
	logger := NewDefaultLogger()
	return &QueueConfig{
		Logger:              logger,
		PanicHandler:        &DefaultPanicHandler{Logger: logger},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: NewDefaultRejectedTaskHandler(logger, 1),
		HistoryCapacity:     defaultTaskHistoryCapacity,
		StallTimeout:        defaultStallTimeout,
	}
}

// withDefaults returns a copy of c with every unset field filled in.
func (c *QueueConfig) withDefaults() QueueConfig {
	var out QueueConfig
	if c != nil {
		out = *c
	}
	if out.Logger == nil {
		out.Logger = NewDefaultLogger()
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{Logger: out.Logger}
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = NewDefaultRejectedTaskHandler(out.Logger, 1)
	}
	if out.HistoryCapacity <= 0 {
		out.HistoryCapacity = defaultTaskHistoryCapacity
	}
	if out.StallTimeout <= 0 {
		out.StallTimeout = defaultStallTimeout
	}
	return out
}
