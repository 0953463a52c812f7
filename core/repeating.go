package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts five or six field specs (optional leading seconds) and
// descriptors such as "@hourly" or "@every 90s". A "CRON_TZ=Area/City"
// prefix selects the time zone.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// RepeatingHandle controls a task that reschedules itself after each run.
type RepeatingHandle struct {
	d    *Dispatcher
	qos  QoS
	task Task
	next func(time.Time) time.Time

	stopped atomic.Bool
	current atomic.Pointer[TaskHandle]
	runs    atomic.Int64
}

// Every runs task on qos every interval, the first run one interval from now.
// The next run is scheduled when the previous one returns, so runs never
// overlap. It panics if interval <= 0.
func (d *Dispatcher) Every(qos QoS, interval time.Duration, task Task) *RepeatingHandle {
	if interval <= 0 {
		panic("dispatch: non-positive repeating interval")
	}
	return d.repeat(qos, task, func(now time.Time) time.Time {
		return now.Add(interval)
	})
}

// Cron runs task on qos at the times described by spec.
func (d *Dispatcher) Cron(qos QoS, spec string, task Task) (*RepeatingHandle, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("dispatch: parse cron spec %q: %w", spec, err)
	}
	return d.repeat(qos, task, sched.Next), nil
}

func (d *Dispatcher) repeat(qos QoS, task Task, next func(time.Time) time.Time) *RepeatingHandle {
	if task == nil {
		panic("dispatch: nil task")
	}
	r := &RepeatingHandle{d: d, qos: qos, task: task, next: next}
	r.schedule()
	return r
}

func (r *RepeatingHandle) schedule() {
	if r.stopped.Load() {
		return
	}
	now := time.Now()
	at := r.next(now)
	if at.IsZero() {
		r.d.logger.Warn("repeating task has no next run time, stopping", F("qos", r.qos.String()))
		r.stopped.Store(true)
		return
	}

	h := r.d.AsyncAfter(r.qos, at.Sub(now), r.tick)
	r.current.Store(h)
	if r.stopped.Load() {
		// Lost a race with Stop.
		h.Cancel()
	}
}

func (r *RepeatingHandle) tick(ctx context.Context) {
	if r.stopped.Load() {
		return
	}
	defer r.schedule()
	r.runs.Add(1)
	r.task(ctx)
}

// Stop cancels the pending run. A run already executing finishes but is not
// rescheduled.
func (r *RepeatingHandle) Stop() {
	r.stopped.Store(true)
	if h := r.current.Load(); h != nil {
		h.Cancel()
	}
}

// IsStopped reports whether no further runs will be scheduled, either
// because Stop was called or because the dispatcher rejected the next run.
func (r *RepeatingHandle) IsStopped() bool {
	if r.stopped.Load() {
		return true
	}
	h := r.current.Load()
	return h != nil && h.Rejected()
}

// Runs returns how many times the task has started.
func (r *RepeatingHandle) Runs() int64 {
	return r.runs.Load()
}
