package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Adapter metrics
	AdapterOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_adapter_operations_total",
			Help: "Total number of adapter operations by flavour and operation",
		},
		[]string{"flavour", "operation"},
	)

	AdapterOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_adapter_operation_duration_seconds",
			Help:    "Adapter operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"flavour", "operation"},
	)

	AdapterErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_adapter_errors_total",
			Help: "Total number of adapter errors by flavour and kind",
		},
		[]string{"flavour", "kind"},
	)

	// Repository metrics
	ObserverDispatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_observer_dispatches_total",
			Help: "Total number of observer notifications dispatched",
		},
	)

	ObserverFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_observer_failures_total",
			Help: "Total number of observer notifications that failed",
		},
	)

	// Task engine metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_tasks_total",
			Help: "Number of task records by status",
		},
		[]string{"status"},
	)

	TasksClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_tasks_claimed_total",
			Help: "Total number of task claims by workers",
		},
	)

	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_tasks_completed_total",
			Help: "Total number of tasks reaching a terminal status",
		},
		[]string{"status"},
	)

	StaleLeasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_stale_leases_total",
			Help: "Total number of task results discarded for a lost lease",
		},
	)

	HandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_handler_duration_seconds",
			Help:    "Task handler run duration in seconds by classification",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"classification"},
	)

	SchedulerCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_scheduler_cycle_duration_seconds",
			Help:    "Time taken for a scheduler claim cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(AdapterOperationsTotal)
	prometheus.MustRegister(AdapterOperationDuration)
	prometheus.MustRegister(AdapterErrorsTotal)
	prometheus.MustRegister(ObserverDispatchesTotal)
	prometheus.MustRegister(ObserverFailuresTotal)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TasksClaimedTotal)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(StaleLeasesTotal)
	prometheus.MustRegister(HandlerDuration)
	prometheus.MustRegister(SchedulerCycleDuration)
}

// Handler returns the HTTP handler exposing the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures a duration for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time into a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time into a labeled histogram
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
