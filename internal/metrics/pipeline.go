package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion, search and evaluation metrics.
var (
	IngestItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_items_total",
			Help:      "Annotations handled by ingestion, by outcome",
		},
		[]string{"result"}, // "processed" / "missing" / "failed"
	)

	IngestBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_batches_total",
			Help:      "Record batches written to the vector store",
		},
	)

	IngestBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_batch_duration_seconds",
			Help:      "Duration of a batch write to the vector store",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	SearchUnderfilledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_underfilled_total",
			Help:      "Searches that found fewer distinct images than requested",
		},
	)

	EvalRecall = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eval_recall",
			Help:      "Running Recall@K of the current evaluation",
		},
		[]string{"k"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers ingestion, search and evaluation metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestItemsTotal)
	prometheus.MustRegister(IngestBatchesTotal)
	prometheus.MustRegister(IngestBatchDuration)
	prometheus.MustRegister(SearchUnderfilledTotal)
	prometheus.MustRegister(EvalRecall)
	pipelineMetricsRegistered = true
}
