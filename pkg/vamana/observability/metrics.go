package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments this module registers globally
// via promauto, mirroring the teacher's own NewMetrics() shape (no
// Registerer argument — the teacher registers directly against the default
// registry, and this keeps call sites identical to that idiom).
type Metrics struct {
	BuildDuration     prometheus.Histogram
	BuildNodesTotal   prometheus.Counter
	InsertDuration    prometheus.Histogram
	InsertPruneCount  prometheus.Histogram
	QueryDuration     *prometheus.HistogramVec
	QueryCandidatesVisited prometheus.Histogram
	QuantizerTrainingSamples prometheus.Gauge
}

// NewMetrics creates and registers every instrument this package exposes.
func NewMetrics() *Metrics {
	return &Metrics{
		BuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vamana_build_duration_seconds",
			Help:    "Wall time of a full index build.",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300, 600, 1800},
		}),
		BuildNodesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vamana_build_nodes_total",
			Help: "Total nodes created across all builds.",
		}),
		InsertDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vamana_insert_duration_seconds",
			Help:    "Wall time of a single incremental insert.",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
		}),
		InsertPruneCount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vamana_insert_prune_count",
			Help:    "Neighbors dropped by robust-prune per insert.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vamana_query_duration_seconds",
			Help:    "Wall time of a single top-k query, labeled by storage variant.",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"storage_variant"}),
		QueryCandidatesVisited: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vamana_query_candidates_visited",
			Help:    "Nodes visited by greedy search per query.",
			Buckets: []float64{10, 25, 50, 100, 200, 500, 1000},
		}),
		QuantizerTrainingSamples: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vamana_quantizer_training_samples",
			Help: "Training samples accumulated by the active quantizer.",
		}),
	}
}

func (m *Metrics) RecordBuild(d time.Duration, nodes int) {
	m.BuildDuration.Observe(d.Seconds())
	m.BuildNodesTotal.Add(float64(nodes))
}

func (m *Metrics) RecordInsert(d time.Duration, pruned int) {
	m.InsertDuration.Observe(d.Seconds())
	m.InsertPruneCount.Observe(float64(pruned))
}

func (m *Metrics) RecordQuery(variant string, d time.Duration, visited int) {
	m.QueryDuration.WithLabelValues(variant).Observe(d.Seconds())
	m.QueryCandidatesVisited.Observe(float64(visited))
}

func (m *Metrics) RecordQuantizerSamples(n int) {
	m.QuantizerTrainingSamples.Set(float64(n))
}
