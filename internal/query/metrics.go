package query

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// queriesTotal counts queries by mode and outcome.
	// Labels: mode (lookup, fuzzy, search, traverse),
	// result (hit, miss, empty, invalid, error).
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recalld",
			Subsystem: "query",
			Name:      "queries_total",
			Help:      "Total number of queries by mode and outcome",
		},
		[]string{"mode", "result"},
	)

	// queryDuration tracks query latency by mode.
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recalld",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query latency in seconds by mode",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
)

// queryTimer observes one query's latency on completion.
type queryTimer struct {
	mode  string
	start time.Time
}

func startTimer(mode string) *queryTimer {
	return &queryTimer{mode: mode, start: time.Now()}
}

func (t *queryTimer) done() {
	queryDuration.WithLabelValues(t.mode).Observe(time.Since(t.start).Seconds())
}
