// Package metrics provides Prometheus instrumentation for todosync.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without instrumentation in tests and one-shot commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "todosync"

// Cycle results.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Change kinds applied by the reconciler.
const (
	ChangeListCreated = "list_created"
	ChangeListRenamed = "list_renamed"
	ChangeItemCreated = "item_created"
	ChangeItemUpdated = "item_updated"
	ChangeItemDeleted = "item_deleted"
)

// Queue command outcomes.
const (
	CommandApplied = "applied"
	CommandDropped = "dropped"
	CommandFailed  = "failed"
)

// Metrics holds the todosync collectors and the registry they live on.
type Metrics struct {
	registry *prometheus.Registry

	syncCycles    *prometheus.CounterVec
	syncDuration  prometheus.Histogram
	syncChanges   *prometheus.CounterVec
	pushes        *prometheus.CounterVec
	queueCommands *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	subscribers   prometheus.Gauge
}

// New creates the collectors on a dedicated registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		syncCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cycles_total",
			Help:      "Reconciliation cycles by result.",
		}, []string{"result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_cycle_duration_seconds",
			Help:      "Duration of completed reconciliation cycles.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		syncChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_changes_total",
			Help:      "Local changes applied by the reconciler.",
		}, []string{"kind"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_total",
			Help:      "Outbound pushes to the external system by operation and result.",
		}, []string{"op", "result"}),
		queueCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_commands_total",
			Help:      "Item update commands processed by the worker.",
		}, []string{"result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Commands waiting in the queue.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Active list subscriptions.",
		}),
	}

	m.registry.MustRegister(
		m.syncCycles,
		m.syncDuration,
		m.syncChanges,
		m.pushes,
		m.queueCommands,
		m.queueDepth,
		m.subscribers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordCycle records a finished cycle. Duration is only observed for
// cycles that ran.
func (m *Metrics) RecordCycle(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.syncCycles.WithLabelValues(result).Inc()
	if result != ResultSkipped {
		m.syncDuration.Observe(duration.Seconds())
	}
}

// AddChanges adds n changes of the given kind.
func (m *Metrics) AddChanges(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.syncChanges.WithLabelValues(kind).Add(float64(n))
}

// RecordPush records the outcome of one outbound push.
func (m *Metrics) RecordPush(op, result string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(op, result).Inc()
}

// RecordCommand records the outcome of one queue command.
func (m *Metrics) RecordCommand(result string) {
	if m == nil {
		return
	}
	m.queueCommands.WithLabelValues(result).Inc()
}

// SetQueueDepth sets the current queue depth.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// AddSubscribers adjusts the subscription gauge by delta.
func (m *Metrics) AddSubscribers(delta int) {
	if m == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}
