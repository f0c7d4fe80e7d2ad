package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// entriesGauge tracks the total number of cached entries across
	// all scopes.
	entriesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recalld",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of entries in the recall index",
		},
	)
)
