package rebuild

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// triggersTotal counts triggers that passed debounce and lock.
	triggersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "rebuild",
			Name:      "triggers_total",
			Help:      "Total number of rebuild triggers dispatched",
		},
	)

	// debouncedTotal counts triggers suppressed by the debounce window.
	debouncedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "rebuild",
			Name:      "debounced_total",
			Help:      "Total number of rebuild triggers suppressed within the debounce window",
		},
	)

	// lockBusyTotal counts triggers dropped because a dispatch was
	// already in flight.
	lockBusyTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "rebuild",
			Name:      "lock_busy_total",
			Help:      "Total number of rebuild triggers dropped while a dispatch was in flight",
		},
	)

	// dispatchesTotal counts dispatch attempts by notifier and result.
	dispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "rebuild",
			Name:      "dispatches_total",
			Help:      "Total number of rebuild dispatch attempts",
		},
		[]string{"notifier", "result"},
	)

	// rebuildsTotal counts executor runs by result.
	// Labels: result (success, partial, error).
	rebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "rebuild",
			Name:      "runs_total",
			Help:      "Total number of rebuild executor runs by result",
		},
		[]string{"result"},
	)

	// rebuildDuration tracks successful rebuild latency.
	rebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "recalld",
			Subsystem: "rebuild",
			Name:      "duration_seconds",
			Help:      "Duration of successful rebuild runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)
)
