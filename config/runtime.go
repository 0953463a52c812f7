package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Swind/go-dispatch/core"
	promexp "github.com/Swind/go-dispatch/observability/prometheus"
	"github.com/Swind/go-dispatch/observability/tracing"
	prom "github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Options converts c into dispatcher options. logger receives queue logs.
// metrics may be nil, in which case task metrics are discarded.
func (c *Config) Options(logger core.Logger, metrics core.Metrics) (core.Options, error) {
	if err := c.Validate(); err != nil {
		return core.Options{}, err
	}
	maxIdle, _ := ParseDurationField("delay.max_idle", c.Delay.MaxIdle)
	stall, _ := ParseDurationField("queues.stall_timeout", c.Queues.StallTimeout)

	qc := &core.QueueConfig{
		Logger:              logger,
		PanicHandler:        &core.DefaultPanicHandler{Logger: logger},
		Metrics:             metrics,
		RejectedTaskHandler: core.NewDefaultRejectedTaskHandler(logger, c.RejectedLogRate),
		HistoryCapacity:     c.History,
		StallTimeout:        stall,
	}
	return core.Options{
		UserInteractiveWorkers: c.Queues.UserInteractive.Workers,
		UserInitiatedWorkers:   c.Queues.UserInitiated.Workers,
		UtilityWorkers:         c.Queues.Utility.Workers,
		BackgroundWorkers:      c.Queues.Background.Workers,
		DelayMaxIdle:           maxIdle,
		QueueConfig:            qc,
	}, nil
}

// Runtime is a Dispatcher together with the logging, metrics and tracing
// wiring its Config asked for.
type Runtime struct {
	Config     *Config
	Logger     *Logger
	Dispatcher *core.Dispatcher

	// Exporter and Poller are nil unless metrics are enabled.
	Exporter *promexp.MetricsExporter
	Poller   *promexp.SnapshotPoller

	// TracerProvider is nil unless tracing is enabled.
	TracerProvider *sdktrace.TracerProvider

	traceOut io.Closer
}

// Build creates a Runtime from c. Logs go to logOut; metric collectors are
// registered with reg (the default registerer when nil). An invalid c is
// rejected before anything is registered.
func (c *Config) Build(logOut io.Writer, reg prom.Registerer) (*Runtime, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	logger, err := NewLogger(logOut, c.Log)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	rt := &Runtime{Config: c, Logger: logger}

	var metrics core.Metrics
	if c.Metrics.Enabled {
		interval, _ := ParseDurationOrDefault("metrics.poll_interval", c.Metrics.PollInterval, time.Second)
		if rt.Exporter, err = promexp.NewMetricsExporter(c.Metrics.Namespace, reg, promexp.ExporterOptions{}); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		if rt.Poller, err = promexp.NewSnapshotPoller(c.Metrics.Namespace, reg, interval); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		metrics = rt.Exporter
	}

	opts, err := c.Options(logger, metrics)
	if err != nil {
		return nil, err
	}

	if c.Tracing.Enabled {
		out, err := tracing.OpenOutput(c.Tracing.Output)
		if err != nil {
			return nil, fmt.Errorf("tracing.output: %w", err)
		}
		tp, err := tracing.NewProvider(c.Tracing.ServiceName, c.Tracing.ServiceVersion, out)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("tracing: %w", err)
		}
		rt.TracerProvider = tp
		rt.traceOut = out
		opts.Tracer = tracing.Tracer(tp)
	}

	rt.Dispatcher = core.NewDispatcher(opts)
	return rt, nil
}

// Start begins metric polling, if enabled, until ctx ends or Close is called.
func (r *Runtime) Start(ctx context.Context) {
	if r.Poller == nil {
		return
	}
	r.Poller.AddDispatcher("default", r.Dispatcher)
	r.Poller.Start(ctx)
}

// Reload applies the parts of next that can change on a live Runtime: the
// log section. Everything else needs a restart and is reported back.
func (r *Runtime) Reload(next *Config) (restart []string, err error) {
	if err := r.Logger.Apply(next.Log); err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	prev := r.Config
	if prev.Queues != next.Queues || prev.Delay != next.Delay || prev.History != next.History ||
		prev.RejectedLogRate != next.RejectedLogRate {
		restart = append(restart, "dispatcher")
	}
	if prev.Metrics != next.Metrics {
		restart = append(restart, "metrics")
	}
	if prev.Tracing != next.Tracing {
		restart = append(restart, "tracing")
	}
	prev.Log = next.Log
	return restart, nil
}

// Close drains the dispatcher for up to timeout, then stops polling and
// flushes spans.
func (r *Runtime) Close(timeout time.Duration) error {
	var errs []error
	if r.Dispatcher != nil {
		errs = append(errs, r.Dispatcher.ShutdownGraceful(timeout))
	}
	r.Poller.Stop()
	if r.TracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		errs = append(errs, r.TracerProvider.Shutdown(ctx))
		cancel()
	}
	if r.traceOut != nil {
		errs = append(errs, r.traceOut.Close())
	}
	return errors.Join(errs...)
}
