package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion pipeline Prometheus metrics. Counter names mirror the stage
// completion signals: batches created, embeddings generated, embeddings saved.
var (
	BatchesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vistry",
			Name:      "batches_created_total",
			Help:      "Total batch objects written by the batcher",
		},
	)

	RecordsEmbeddedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vistry",
			Name:      "records_embedded_total",
			Help:      "Catalog records processed by the embedder",
		},
		[]string{"status"}, // "success" / "failed"
	)

	DocumentsIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vistry",
			Name:      "documents_indexed_total",
			Help:      "Documents submitted to the vector index",
		},
		[]string{"status"}, // "success" / "failed"
	)

	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vistry",
			Name:      "searches_total",
			Help:      "Search requests served",
		},
		[]string{"kind", "status"}, // kind: "image" / "text"
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vistry",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage invocation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 120, 300},
		},
		[]string{"stage", "status"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(BatchesCreatedTotal)
	prometheus.MustRegister(RecordsEmbeddedTotal)
	prometheus.MustRegister(DocumentsIndexedTotal)
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(StageDuration)
	pipelineMetricsRegistered = true
}
