package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-dispatch/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// QueueSnapshotProvider provides current queue stats snapshots.
// SerialQueue and ConcurrentQueue satisfy it.
type QueueSnapshotProvider interface {
	Stats() core.QueueStats
}

// DispatcherSnapshotProvider provides stats for every built-in queue of a dispatcher.
type DispatcherSnapshotProvider interface {
	Stats() core.DispatcherStats
}

// SnapshotPoller periodically exports queue and dispatcher Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	queuesMu sync.RWMutex
	queues   map[string]QueueSnapshotProvider

	dispatchersMu sync.RWMutex
	dispatchers   map[string]DispatcherSnapshotProvider

	queueQueued   *prom.GaugeVec
	queueActive   *prom.GaugeVec
	queueWorkers  *prom.GaugeVec
	queueOverflow *prom.GaugeVec
	queueExecuted *prom.GaugeVec
	queuePanicked *prom.GaugeVec
	queueRejected *prom.GaugeVec
	queueClosed   *prom.GaugeVec

	dispatcherDelayed *prom.GaugeVec
	dispatcherClosed  *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	queueGauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"dispatcher", "queue", "type"})
	}
	dispatcherGauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"dispatcher"})
	}

	p := &SnapshotPoller{
		interval:      interval,
		queues:        make(map[string]QueueSnapshotProvider),
		dispatchers:   make(map[string]DispatcherSnapshotProvider),
		queueQueued:   queueGauge("queue_queued", "Tasks waiting per queue."),
		queueActive:   queueGauge("queue_active", "Tasks running per queue."),
		queueWorkers:  queueGauge("queue_workers", "Worker count per queue."),
		queueOverflow: queueGauge("queue_overflow_workers", "Overflow workers added to stalled queues."),
		queueExecuted: queueGauge("queue_executed", "Tasks executed per queue since start."),
		queuePanicked: queueGauge("queue_panicked", "Tasks that panicked per queue since start."),
		queueRejected: queueGauge("queue_rejected", "Tasks rejected per queue since start."),
		queueClosed:   queueGauge("queue_closed", "Queue closed state (1=closed, 0=open)."),

		dispatcherDelayed: dispatcherGauge("dispatcher_delayed", "Tasks waiting for their delay to elapse."),
		dispatcherClosed:  dispatcherGauge("dispatcher_closed", "Dispatcher closed state (1=closed, 0=open)."),
	}

	for _, g := range []**prom.GaugeVec{
		&p.queueQueued, &p.queueActive, &p.queueWorkers, &p.queueOverflow, &p.queueExecuted,
		&p.queuePanicked, &p.queueRejected, &p.queueClosed,
		&p.dispatcherDelayed, &p.dispatcherClosed,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}

	return p, nil
}

// AddQueue adds or replaces a standalone queue snapshot provider by name.
// Its series carry an empty dispatcher label.
func (p *SnapshotPoller) AddQueue(name string, provider QueueSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "queue")
	p.queuesMu.Lock()
	p.queues[name] = provider
	p.queuesMu.Unlock()
}

// AddDispatcher adds or replaces a dispatcher snapshot provider by name.
func (p *SnapshotPoller) AddDispatcher(name string, provider DispatcherSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "dispatcher")
	p.dispatchersMu.Lock()
	p.dispatchers[name] = provider
	p.dispatchersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	done := p.done
	p.stateMu.Unlock()

	go p.loop(pollCtx, done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

// CollectOnce exports one snapshot of every registered provider.
func (p *SnapshotPoller) CollectOnce() {
	if p == nil {
		return
	}

	p.queuesMu.RLock()
	for name, provider := range p.queues {
		p.setQueue("", name, provider.Stats())
	}
	p.queuesMu.RUnlock()

	p.dispatchersMu.RLock()
	for name, provider := range p.dispatchers {
		stats := provider.Stats()
		for _, qs := range stats.Queues {
			p.setQueue(name, normalizeLabel(qs.Label, "unknown"), qs)
		}
		p.dispatcherDelayed.WithLabelValues(name).Set(float64(stats.Delayed))
		p.dispatcherClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
	p.dispatchersMu.RUnlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

func (p *SnapshotPoller) setQueue(dispatcher, queue string, stats core.QueueStats) {
	typeLabel := normalizeLabel(stats.Type, "unknown")
	p.queueQueued.WithLabelValues(dispatcher, queue, typeLabel).Set(float64(stats.Queued))
	p.queueActive.WithLabelValues(dispatcher, queue, typeLabel).Set(float64(stats.Active))
	p.queueWorkers.WithLabelValues(dispatcher, queue, typeLabel).Set(float64(stats.Workers))
	p.queueOverflow.WithLabelValues(dispatcher, queue, typeLabel).Set(float64(stats.Overflow))
	p.queueExecuted.WithLabelValues(dispatcher, queue, typeLabel).Set(float64(stats.Executed))
	p.queuePanicked.WithLabelValues(dispatcher, queue, typeLabel).Set(float64(stats.Panicked))
	p.queueRejected.WithLabelValues(dispatcher, queue, typeLabel).Set(float64(stats.Rejected))
	p.queueClosed.WithLabelValues(dispatcher, queue, typeLabel).Set(boolGauge(stats.Closed))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
