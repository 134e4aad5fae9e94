// Package metrics exposes the runtime's internal Prometheus collectors.
// There is no bundled HTTP listener: a host app that wants a /metrics
// endpoint registers Registry.Registry() with its own server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "edgeveda"

// Registry bundles every collector on a private *prometheus.Registry
// instead of the global default, so embedding the core never leaks metrics
// into a host app's own /metrics surface.
type Registry struct {
	reg *prometheus.Registry

	InferenceLatency prometheus.ObserverVec
	InferenceTokens  *prometheus.CounterVec
	InferenceErrors  *prometheus.CounterVec

	QoSLevel         prometheus.Gauge
	QoSTransitions   *prometheus.CounterVec
	BudgetViolations *prometheus.CounterVec

	FramesEnqueued prometheus.Counter
	FramesDropped  prometheus.Counter

	SchedulerQueueDepth *prometheus.GaugeVec

	ThermalLevel   prometheus.Gauge
	BatteryDrain   prometheus.Gauge
	RSSBytes       prometheus.Gauge
	AvailableBytes prometheus.Gauge

	HealthCheckStatus *prometheus.GaugeVec
}

// New creates a Registry with every collector registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		InferenceLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_latency_seconds",
			Help:      "Completed inference request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workload"}),

		InferenceTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_tokens_total",
			Help:      "Total tokens generated.",
		}, []string{"workload"}),

		InferenceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_errors_total",
			Help:      "Total generation failures by error kind.",
		}, []string{"workload", "kind"}),

		QoSLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "qos_level",
			Help:      "Active QoSLevel (0=Full, 1=Reduced, 2=Minimal, 3=Paused).",
		}),

		QoSTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "qos_transitions_total",
			Help:      "Total QoSLevel transitions by destination level.",
		}, []string{"to"}),

		BudgetViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_violations_total",
			Help:      "Total budget violations by constraint and mitigation outcome.",
		}, []string{"constraint", "mitigated"}),

		FramesEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_enqueued_total",
			Help:      "Total frames submitted to the frame queue.",
		}),

		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total frames displaced by a newer frame before being processed.",
		}),

		SchedulerQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_workload_active",
			Help:      "1 if a registered workload is currently admitted, 0 if gated.",
		}, []string{"workload"}),

		ThermalLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "thermal_level",
			Help:      "Current thermal pressure level (0..3).",
		}),

		BatteryDrain: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_drain_percent_per_10min",
			Help:      "Estimated battery drain rate, percent per 10 minutes.",
		}),

		RSSBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_rss_bytes",
			Help:      "Resident set size of the host process.",
		}),

		AvailableBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_available_bytes",
			Help:      "System memory available to new allocations.",
		}),

		HealthCheckStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_check_status",
			Help:      "Health check result per component (1=healthy, 0=unhealthy).",
		}, []string{"check"}),
	}
}

// Registry returns the underlying *prometheus.Registry for a host app to
// mount on its own /metrics handler.
func (r *Registry) Registry() *prometheus.Registry { return r.reg }
