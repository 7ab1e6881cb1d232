// Package metrics holds the Prometheus collectors of the clustering core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{0.1, 0.5, 1, 5, 10, 20, 50, 100, 200, 500, 1000}

var (
	RebuildsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clustermap_rebuilds_total",
		Help: "Total number of index rebuilds",
	})
	RebuildDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clustermap_rebuild_duration_ms",
		Help:    "Index rebuild duration in milliseconds",
		Buckets: durationBuckets,
	})
	IndexedPoints = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clustermap_indexed_points",
		Help: "Number of points in the last built index",
	})
	SkippedItemsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clustermap_skipped_items_total",
		Help: "Total items skipped because their coordinate could not be resolved",
	})
	QueriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clustermap_queries_total",
		Help: "Total number of viewport queries",
	})
	QueryDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clustermap_query_duration_ms",
		Help:    "Viewport query duration in milliseconds",
		Buckets: durationBuckets,
	})
	VisibleNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clustermap_visible_nodes",
		Help: "Number of nodes in the last visible set",
	})
	ClusterPressTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clustermap_cluster_press_total",
		Help: "Cluster taps by handling mode",
	}, []string{"mode"})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clustermap_sessions_active",
		Help: "Sessions created and not torn down",
	})
)

func init() {
	prometheus.MustRegister(RebuildsTotal)
	prometheus.MustRegister(RebuildDurationMs)
	prometheus.MustRegister(IndexedPoints)
	prometheus.MustRegister(SkippedItemsTotal)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDurationMs)
	prometheus.MustRegister(VisibleNodes)
	prometheus.MustRegister(ClusterPressTotal)
	prometheus.MustRegister(SessionsActive)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
