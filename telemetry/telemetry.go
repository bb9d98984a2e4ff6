// Package telemetry exposes pipeline counters to Prometheus. Metrics built
// without a registry are no-ops.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/web3tea/pgcdc-sentinel/pkg/log"
)

const namespace = "pgcdc_sentinel"

type Counter interface {
	Inc()
	Add(float64)
}

type Histogram interface {
	Observe(float64)
}

type CounterVec interface {
	With(labels ...string) Counter
}

type NoopStat struct{}

func (n NoopStat) Inc()            {}
func (n NoopStat) Add(float64)     {}
func (n NoopStat) Observe(float64) {}

type noopCounterVec struct{}

func (n noopCounterVec) With(labels ...string) Counter { return NoopStat{} }

type prometheusCounterVec struct {
	vec *prometheus.CounterVec
}

func (p *prometheusCounterVec) With(labelValues ...string) Counter {
	return p.vec.WithLabelValues(labelValues...)
}

// Metrics are the pipeline counters.
type Metrics struct {
	// Lines counts every line read from the source.
	Lines Counter
	// Changes counts committed transactions.
	Changes Counter
	// Events counts key/value writes handed to the sink, by kind.
	Events CounterVec
	// Dropped counts events removed by the processor chain.
	Dropped Counter
	// Errors counts failures by pipeline stage: decode, adapt, process, sink.
	Errors CounterVec
	// SinkWrite observes the duration of sink writes in seconds.
	SinkWrite Histogram
}

// Noop returns Metrics that record nothing.
func Noop() *Metrics {
	return &Metrics{
		Lines:     NoopStat{},
		Changes:   NoopStat{},
		Events:    noopCounterVec{},
		Dropped:   NoopStat{},
		Errors:    noopCounterVec{},
		SinkWrite: NoopStat{},
	}
}

// NewRegistry returns a registry with the process and Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

// Register creates the pipeline metrics on registry. A nil registry yields Noop().
func Register(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		return Noop()
	}

	lines := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "lines_total", Help: "Lines read from the decoding source.",
	})
	changes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "changes_total", Help: "Committed transactions decoded.",
	})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "events_total", Help: "Key/value events written to the sink.",
	}, []string{"kind"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "events_dropped_total", Help: "Events dropped by the processor chain.",
	})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "errors_total", Help: "Pipeline failures by stage.",
	}, []string{"stage"})
	sinkWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "sink_write_seconds", Help: "Duration of sink writes.",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(lines, changes, events, dropped, errs, sinkWrite)
	return &Metrics{
		Lines:     lines,
		Changes:   changes,
		Events:    &prometheusCounterVec{vec: events},
		Dropped:   dropped,
		Errors:    &prometheusCounterVec{vec: errs},
		SinkWrite: sinkWrite,
	}
}

// Handler serves registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Serve exposes /metrics on listen until ctx is done.
func Serve(ctx context.Context, listen string, registry *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(registry))
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Serving metrics on %s/metrics", listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
