package core

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// ParallelFor calls body(i) for every i in [0, n) and returns once all calls
// have returned. Iterations run on up to GOMAXPROCS goroutines, the caller's
// included, with no ordering between indices. n <= 0 returns immediately.
//
// qos tags the trace span only. If body panics, the remaining iterations
// still run and the first panic value is re-raised on the caller.
func (d *Dispatcher) ParallelFor(n int, qos QoS, body func(i int)) {
	if n <= 0 {
		return
	}
	if body == nil {
		panic("dispatch: nil ParallelFor body")
	}

	_, span := d.startSpan(context.Background(), "dispatch.parallel_for", qos, attrIterations.Int(n))

	var (
		next      atomic.Int64
		panicMu   sync.Mutex
		panicked  bool
		panicInfo any
	)

	iterate := func(i int) {
		defer func() {
			if r := recover(); r != nil {
				panicMu.Lock()
				if !panicked {
					panicked = true
					panicInfo = r
				}
				panicMu.Unlock()
			}
		}()
		body(i)
	}

	worker := func() {
		for {
			i := int(next.Add(1) - 1)
			if i >= n {
				return
			}
			iterate(i)
		}
	}

	workers := min(n, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for w := 1; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker()
		}()
	}
	worker()
	wg.Wait()

	endSpan(span, !panicked)
	if panicked {
		panic(panicInfo)
	}
}
