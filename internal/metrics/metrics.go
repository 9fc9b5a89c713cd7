package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every collector exposed on /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	DocumentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iatidocs_documents_total",
			Help: "Total number of documents that reached a terminal outcome.",
		},
		[]string{"status", "reason"}, // status: success, failure
	)

	FetchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iatidocs_fetch_duration_seconds",
			Help:    "Duration of document fetches.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"result"},
	)

	ExtractDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iatidocs_extract_duration_seconds",
			Help:    "Duration of content extraction calls.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
		},
		[]string{"result"},
	)

	InFlightDocuments = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "iatidocs_inflight_documents",
			Help: "Documents currently being fetched or extracted.",
		},
	)

	CacheHitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "iatidocs_cache_hits_total",
			Help: "Extractions served from the fingerprint cache.",
		},
	)

	SinkErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iatidocs_sink_errors_total",
			Help: "Outcome writes rejected by a sink.",
		},
		[]string{"sink"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
