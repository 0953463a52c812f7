package dispatch

import "github.com/Swind/go-dispatch/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the dispatch package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// QoS is the quality-of-service class a task is submitted with
type QoS = core.QoS

// Queue is an execution context tasks are submitted to
type Queue = core.Queue

// SerialQueue runs tasks one at a time on a locked OS thread
type SerialQueue = core.SerialQueue

// ConcurrentQueue runs tasks on worker goroutines that grow when stalled
type ConcurrentQueue = core.ConcurrentQueue

// TaskHandle refers to one scheduled unit of work
type TaskHandle = core.TaskHandle

// TaskState is the lifecycle state of a TaskHandle
type TaskState = core.TaskState

// TaskGroup counts outstanding work
type TaskGroup = core.TaskGroup

// RepeatingHandle controls a self-rescheduling task
type RepeatingHandle = core.RepeatingHandle

// Dispatcher owns the built-in queues
type Dispatcher = core.Dispatcher

// Options configures a Dispatcher
type Options = core.Options

// Built-in classes
var (
	QoSMain            = core.QoSMain
	QoSUserInteractive = core.QoSUserInteractive
	QoSUserInitiated   = core.QoSUserInitiated
	QoSUtility         = core.QoSUtility
	QoSBackground      = core.QoSBackground
)

// Handle states
const (
	TaskPending   = core.TaskPending
	TaskRunning   = core.TaskRunning
	TaskCompleted = core.TaskCompleted
	TaskCancelled = core.TaskCancelled
)

// Custom returns a QoS that resolves to a caller-owned queue.
func Custom(q Queue) QoS {
	return core.Custom(q)
}

// CurrentQueue returns the queue executing the task that owns ctx.
var CurrentQueue = core.CurrentQueue
