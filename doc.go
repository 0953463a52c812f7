// Package dispatch schedules closures onto quality-of-service classed queues.
//
// Work is submitted to one of a small closed set of classes (Main,
// UserInteractive, UserInitiated, Utility, Background) or to a caller-owned
// queue through Custom. Each built-in class resolves to one queue for the
// lifetime of the Dispatcher. Main is a single goroutine locked to its OS
// thread that runs tasks in submission order. The other classes run on worker
// goroutines with no ordering between submissions; their worker counts are
// the steady concurrency, and a class whose workers are all blocked while
// work is queued grows overflow workers, so tasks may wait on other tasks of
// the same class.
//
// # Quick Start
//
// The package-level functions use a process-wide Dispatcher created on first
// use. Call Init before that to size it, and Shutdown when the process exits:
//
//	dispatch.Init(core.Options{UtilityWorkers: 8})
//	defer dispatch.Shutdown()
//
//	h := dispatch.Async(dispatch.QoSUtility, func(ctx context.Context) {
//		// fetch something
//	})
//	h.Then(dispatch.QoSMain, func(ctx context.Context) {
//		// publish the result; runs only after the fetch returned
//	})
//
// # Key Concepts
//
// TaskHandle: returned by Async, After and Then. A handle is Pending until a
// worker picks it up, then Running, then Completed. Cancel moves a Pending
// handle to Cancelled and guarantees the work never runs; it does nothing once
// the work started. Wait blocks the caller until the handle finishes or a
// timeout elapses. A zero timeout means wait forever.
//
// Chaining: Then and ThenAfter register a continuation that starts only after
// the predecessor's work returned, on any class. The delay of ThenAfter is
// measured from the predecessor's completion. Continuations of a cancelled
// handle never start and stay Pending, so an unbounded Wait on one blocks
// forever; bound it with a timeout or a context deadline.
//
// TaskGroup: counts outstanding work. Submit pairs Enter and Leave around a
// task; Enter and Leave can also be called directly for callback-style work.
// Wait returns once the count is exactly zero. An unmatched Leave panics.
//
// Apply: runs a body once per index in [0, n) across the available CPUs and
// blocks until every call returned.
//
// # Failure Handling
//
// A panicking task is recovered by its queue worker, reported to the queue's
// PanicHandler and Metrics, and otherwise invisible: its handle still
// completes and its continuations still run. Work submitted after Shutdown is
// rejected; the handle ends Cancelled and Rejected reports true.
package dispatch
