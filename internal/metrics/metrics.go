// Package metrics holds the Prometheus collectors for ingestion and queries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics, recorded only once a batch has committed
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgraph_batches_total",
		Help: "Batches processed by the materializer",
	}, []string{"status"})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kgraph_batch_duration_seconds",
		Help:    "Wall time to materialize one batch, including retries",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	EntitiesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgraph_entities_resolved_total",
		Help: "Entities persisted, by kind and whether they were created or merged",
	}, []string{"kind", "outcome"})

	RelationshipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgraph_relationships_total",
		Help: "Candidate relationships by kind and result (created or the drop reason)",
	}, []string{"kind", "result"})

	AmbiguousDedup = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgraph_dedup_ambiguous_total",
		Help: "Dedup lookups that matched more than one stored record",
	}, []string{"kind"})

	// Read path metrics
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgraph_queries_total",
		Help: "Read queries executed, by dialect and status",
	}, []string{"dialect", "status"})

	QueryCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgraph_query_cache_total",
		Help: "Query cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	AnalystRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kgraph_analyst_requests_total",
		Help: "Analysis requests sent to the LLM provider",
	}, []string{"provider", "status"})

	SpoolDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kgraph_spool_entries",
		Help: "Batches waiting in the retry spool",
	})
)

// Relationship results
const (
	RelCreated           = "created"
	RelDroppedUnknown    = "dropped_unknown_kind"
	RelDroppedUnresolved = "dropped_unresolved"
	RelDroppedMismatch   = "dropped_mismatch"
)
