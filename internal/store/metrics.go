package store

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// storeOps counts store calls by driver, operation and outcome.
	storeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total number of document store operations.",
		},
		[]string{"driver", "op", "result"},
	)

	// storeLat records store call duration in seconds. Outcome is omitted to
	// keep histogram cardinality low.
	storeLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver", "op"},
	)

	// storeProvisioned counts handles resolved against the store (cache misses).
	storeProvisioned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_provisioned_handles_total",
			Help: "Number of database/collection handles provisioned against the store.",
		},
		[]string{"driver", "kind"},
	)
)

func init() {
	prometheus.MustRegister(storeOps, storeLat, storeProvisioned)
}

// resultLabel maps an operation error to a bounded label value.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrCollectionGone):
		return "collection_gone"
	default:
		return "error"
	}
}
