// Package metrics defines the Prometheus instrumentation shared by the
// indexing pipeline, the search engine, and the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event pipeline metrics
var (
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trenton_events_total",
			Help: "Total number of filesystem events processed",
		},
		[]string{"action"},
	)

	EventQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trenton_event_queue_depth",
			Help: "Number of events waiting in the shared queue",
		},
	)

	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trenton_events_dropped_total",
			Help: "Total number of events dropped because the queue was full",
		},
	)
)

// Indexing metrics
var (
	FilesIndexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trenton_files_indexed_total",
			Help: "Total number of file indexing attempts",
		},
		[]string{"modality", "status"},
	)

	IndexDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trenton_index_duration_seconds",
			Help:    "Time spent indexing a single file",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trenton_indexing_jobs_total",
			Help: "Total number of indexing jobs by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	FilesDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trenton_files_deleted_total",
			Help: "Total number of files soft-deleted from the index",
		},
	)
)

// Embedding provider metrics
var (
	EmbedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trenton_embed_requests_total",
			Help: "Total number of embedding provider requests",
		},
		[]string{"kind", "status"},
	)

	EmbedDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trenton_embed_duration_seconds",
			Help:    "Embedding provider request duration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

// Search metrics
var (
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trenton_searches_total",
			Help: "Total number of search requests by query kind",
		},
		[]string{"kind"},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trenton_search_duration_seconds",
			Help:    "End-to-end search duration including query embedding",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	SearchCandidatesScanned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trenton_search_candidates_scanned",
			Help:    "Number of stored vectors scored per search",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trenton_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trenton_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
