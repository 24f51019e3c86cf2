package indexer

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wippyai/view-engine/errors"
)

// Status label values for mapped documents.
const (
	statusOK         = "ok"
	statusError      = "error"
	statusTerminated = "terminated"
)

var (
	mapDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "view_engine_map_duration_seconds",
			Help:    "Duration of one document's pass through all map functions, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "view_engine_active_workers",
			Help: "Number of mapping workers currently running.",
		},
	)

	docsMappedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "view_engine_docs_mapped_total",
			Help: "Total number of documents pushed through the map phase.",
		},
		[]string{"status"},
	)

	mapFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "view_engine_map_failures_total",
			Help: "Per-function map failures on otherwise successful documents, by error kind.",
		},
		[]string{"kind"},
	)

	rowsEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "view_engine_rows_emitted_total",
			Help: "Total view rows emitted by map functions.",
		},
	)

	bytesEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "view_engine_bytes_emitted_total",
			Help: "Total JSON bytes emitted by map functions.",
		},
	)

	terminationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "view_engine_terminations_total",
			Help: "Worker contexts poisoned by termination and rebuilt.",
		},
	)
)

func init() {
	prometheus.MustRegister(mapDuration)
	prometheus.MustRegister(activeWorkers)
	prometheus.MustRegister(docsMappedTotal)
	prometheus.MustRegister(mapFailuresTotal)
	prometheus.MustRegister(rowsEmittedTotal)
	prometheus.MustRegister(bytesEmittedTotal)
	prometheus.MustRegister(terminationsTotal)

	// Pre-initialize label combinations so they appear in /metrics with
	// value 0 from startup, rather than only after first observation.
	docsMappedTotal.WithLabelValues(statusOK)
	docsMappedTotal.WithLabelValues(statusError)
	docsMappedTotal.WithLabelValues(statusTerminated)
	mapFailuresTotal.WithLabelValues(string(errors.KindScript))
	mapFailuresTotal.WithLabelValues(string(errors.KindEmitOverflow))
}

// MetricsHandler returns the Prometheus metrics handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
