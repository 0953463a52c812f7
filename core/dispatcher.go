package core

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Options configures a Dispatcher. Zero fields take the defaults of DefaultOptions.
type Options struct {
	// Worker counts for the concurrent built-in classes. The main queue always
	// has exactly one worker.
	UserInteractiveWorkers int
	UserInitiatedWorkers   int
	UtilityWorkers         int
	BackgroundWorkers      int

	// DelayMaxIdle bounds how long the delay manager sleeps with nothing pending.
	DelayMaxIdle time.Duration

	// QueueConfig is shared by every built-in queue.
	QueueConfig *QueueConfig

	// Tracer receives one span per executed task. Defaults to the global
	// OpenTelemetry provider's tracer named TracerName.
	Tracer trace.Tracer
}

// DefaultOptions sizes the concurrent classes from GOMAXPROCS.
func DefaultOptions() Options {
	procs := runtime.GOMAXPROCS(0)
	return Options{
		UserInteractiveWorkers: max(4, procs),
		UserInitiatedWorkers:   max(4, procs),
		UtilityWorkers:         max(2, procs/2),
		BackgroundWorkers:      2,
		DelayMaxIdle:           time.Hour,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.UserInteractiveWorkers <= 0 {
		o.UserInteractiveWorkers = def.UserInteractiveWorkers
	}
	if o.UserInitiatedWorkers <= 0 {
		o.UserInitiatedWorkers = def.UserInitiatedWorkers
	}
	if o.UtilityWorkers <= 0 {
		o.UtilityWorkers = def.UtilityWorkers
	}
	if o.BackgroundWorkers <= 0 {
		o.BackgroundWorkers = def.BackgroundWorkers
	}
	if o.DelayMaxIdle <= 0 {
		o.DelayMaxIdle = def.DelayMaxIdle
	}
	if o.Tracer == nil {
		o.Tracer = defaultTracer()
	}
	return o
}

// Dispatcher owns one queue per built-in QoS class and the delay manager
// feeding them. Tasks, chains, groups and repeating tasks are all created
// through a Dispatcher.
type Dispatcher struct {
	main   *SerialQueue
	pools  [4]*ConcurrentQueue // indexed by kind - qosUserInteractive
	delays *DelayManager

	config QueueConfig
	logger Logger
	tracer trace.Tracer

	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewDispatcher creates a dispatcher and starts all of its workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	cfg := opts.QueueConfig.withDefaults()

	d := &Dispatcher{
		config: cfg,
		logger: cfg.Logger,
		tracer: opts.Tracer,
	}
	d.main = NewSerialQueue("dispatch.main", &cfg)
	d.pools[0] = NewConcurrentQueue("dispatch.user_interactive", opts.UserInteractiveWorkers, &cfg)
	d.pools[1] = NewConcurrentQueue("dispatch.user_initiated", opts.UserInitiatedWorkers, &cfg)
	d.pools[2] = NewConcurrentQueue("dispatch.utility", opts.UtilityWorkers, &cfg)
	d.pools[3] = NewConcurrentQueue("dispatch.background", opts.BackgroundWorkers, &cfg)
	d.delays = NewDelayManager(opts.DelayMaxIdle, cfg.Logger)

	d.logger.Info("dispatcher started",
		F("user_interactive", opts.UserInteractiveWorkers),
		F("user_initiated", opts.UserInitiatedWorkers),
		F("utility", opts.UtilityWorkers),
		F("background", opts.BackgroundWorkers),
	)
	return d
}

// Resolve maps a QoS class to the queue that executes it. Built-in classes
// always map to the same queue for the lifetime of d; Custom(q) maps to q.
func (d *Dispatcher) Resolve(qos QoS) Queue {
	switch qos.kind {
	case qosMain:
		return d.main
	case qosCustom:
		return qos.queue
	default:
		return d.pools[qos.kind-qosUserInteractive]
	}
}

// MainQueue returns the serial queue bound to QoSMain.
func (d *Dispatcher) MainQueue() *SerialQueue {
	return d.main
}

// Logger returns the logger shared by d's queues.
func (d *Dispatcher) Logger() Logger {
	return d.logger
}

// Stats returns a snapshot of every built-in queue, main first.
func (d *Dispatcher) Stats() DispatcherStats {
	stats := DispatcherStats{
		Queues:  make([]QueueStats, 0, 1+len(d.pools)),
		Delayed: d.delays.TaskCount(),
		Closed:  d.closed.Load(),
	}
	stats.Queues = append(stats.Queues, d.main.Stats())
	for _, p := range d.pools {
		stats.Queues = append(stats.Queues, p.Stats())
	}
	return stats
}

// RecentTasks returns up to limit execution records of the queue qos
// resolves to, newest first. Custom queues without history return nil.
func (d *Dispatcher) RecentTasks(qos QoS, limit int) []TaskExecutionRecord {
	type historian interface {
		RecentTasks(limit int) []TaskExecutionRecord
	}
	if h, ok := d.Resolve(qos).(historian); ok {
		return h.RecentTasks(limit)
	}
	return nil
}

// IsClosed reports whether Shutdown or ShutdownGraceful has been called.
func (d *Dispatcher) IsClosed() bool {
	return d.closed.Load()
}

// Shutdown stops the delay manager and every built-in queue. Pending and
// queued handles end Cancelled with Rejected() true; running tasks are
// waited for. It must not be called from a task running on d.
func (d *Dispatcher) Shutdown() {
	d.shutdownOnce.Do(func() {
		d.closed.Store(true)
		d.delays.Stop()
		d.main.Shutdown()
		for _, p := range d.pools {
			p.Shutdown()
		}
		d.logger.Info("dispatcher stopped")
	})
}

// ShutdownGraceful rejects new work and waits up to timeout for every
// built-in queue to drain. Delayed tasks that are not yet due are dropped.
// On timeout the error wraps ErrShutdownTimeout.
func (d *Dispatcher) ShutdownGraceful(timeout time.Duration) error {
	d.shutdownOnce.Do(func() {
		d.closed.Store(true)
		d.delays.Stop()

		queues := []interface {
			ShutdownGraceful(time.Duration) error
		}{d.main}
		for _, p := range d.pools {
			queues = append(queues, p)
		}

		errs := make([]error, len(queues))
		var wg sync.WaitGroup
		for i, q := range queues {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = q.ShutdownGraceful(timeout)
			}()
		}
		wg.Wait()

		d.shutdownErr = errors.Join(errs...)
		if d.shutdownErr != nil {
			d.logger.Warn("dispatcher stopped with undrained work", F("error", d.shutdownErr))
		} else {
			d.logger.Info("dispatcher stopped")
		}
	})
	return d.shutdownErr
}
