package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
)

var (
	// SnapshotRebuildsTotal counts metadata cache rebuilds
	SnapshotRebuildsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datamap_snapshot_rebuilds_total",
			Help: "Total number of datamap snapshot rebuilds",
		},
	)

	// SnapshotRebuildSeconds tracks how long index, ownership and link
	// classification take
	SnapshotRebuildSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "datamap_snapshot_rebuild_seconds",
			Help:    "Time spent rebuilding a datamap snapshot",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	// GraphSize tracks the shape of the published graph
	GraphSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datamap_graph_size",
			Help: "Vertex, edge, link and cycle edge counts of the current graph",
		},
		[]string{"measure"},
	)

	// QueriesTotal counts query operations served
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datamap_queries_total",
			Help: "Total number of datamap queries",
		},
		[]string{"operation"},
	)

	// MutationsTotal counts mutations by type and outcome
	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datamap_mutations_total",
			Help: "Total number of graph mutations submitted",
		},
		[]string{"op", "result"},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(SnapshotRebuildsTotal)
	prometheus.MustRegister(SnapshotRebuildSeconds)
	prometheus.MustRegister(GraphSize)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(MutationsTotal)
}

func observeGraph(st datamap.Stats) {
	GraphSize.WithLabelValues("vertices").Set(float64(st.Vertices))
	GraphSize.WithLabelValues("edges").Set(float64(st.Edges))
	GraphSize.WithLabelValues("links").Set(float64(st.Links))
	GraphSize.WithLabelValues("cycle_edges").Set(float64(st.CycleEdges))
}
