package dispatch

import (
	"sync"
	"time"

	"github.com/Swind/go-dispatch/core"
)

// =============================================================================
// Default Dispatcher (Singleton)
// =============================================================================

var (
	defaultDispatcher *core.Dispatcher
	defaultMu         sync.Mutex
)

// Init creates the process-wide Dispatcher with opts.
// It does nothing if the default Dispatcher already exists.
func Init(opts Options) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultDispatcher != nil {
		return // Already initialized
	}
	defaultDispatcher = core.NewDispatcher(opts)
}

// Default returns the process-wide Dispatcher, creating it with
// core.DefaultOptions on first use.
func Default() *core.Dispatcher {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultDispatcher == nil {
		defaultDispatcher = core.NewDispatcher(core.DefaultOptions())
	}
	return defaultDispatcher
}

// Shutdown stops the default Dispatcher. A later call to Default or Init
// creates a fresh one.
func Shutdown() {
	defaultMu.Lock()
	d := defaultDispatcher
	defaultDispatcher = nil
	defaultMu.Unlock()

	if d != nil {
		d.Shutdown()
	}
}

// ShutdownGraceful drains the default Dispatcher for up to timeout before stopping it.
func ShutdownGraceful(timeout time.Duration) error {
	defaultMu.Lock()
	d := defaultDispatcher
	defaultDispatcher = nil
	defaultMu.Unlock()

	if d == nil {
		return nil
	}
	return d.ShutdownGraceful(timeout)
}

// Resolve returns the queue qos maps to on the default Dispatcher.
func Resolve(qos QoS) Queue {
	return Default().Resolve(qos)
}

// Async submits task to qos on the default Dispatcher.
func Async(qos QoS, task Task) *TaskHandle {
	return Default().Async(qos, task)
}

// After submits task to qos on the default Dispatcher once delay has elapsed.
func After(qos QoS, delay time.Duration, task Task) *TaskHandle {
	return Default().AsyncAfter(qos, delay, task)
}

// NewGroup returns an empty TaskGroup bound to the default Dispatcher.
func NewGroup() *TaskGroup {
	return Default().NewGroup()
}

// Apply calls body for every index in [0, n) in parallel and blocks until all calls return.
func Apply(n int, qos QoS, body func(i int)) {
	Default().ParallelFor(n, qos, body)
}

// Every runs task on qos every interval on the default Dispatcher.
func Every(qos QoS, interval time.Duration, task Task) *RepeatingHandle {
	return Default().Every(qos, interval, task)
}

// Cron runs task on qos at the times described by spec on the default Dispatcher.
func Cron(qos QoS, spec string, task Task) (*RepeatingHandle, error) {
	return Default().Cron(qos, spec, task)
}
