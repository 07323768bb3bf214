package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoaid_retrieval_duration_seconds",
			Help:    "Retrieval processing duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"mode"},
	)

	RetrievalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoaid_retrieval_total",
			Help: "Total number of retrieval calls",
		},
		[]string{"mode"},
	)

	RetrievalResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autoaid_retrieval_results_count",
			Help:    "Number of citations returned per retrieval",
			Buckets: []float64{0, 1, 2, 5, 10},
		},
	)

	DocumentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoaid_documents_ingested_total",
			Help: "Total documents ingested",
		},
		[]string{"embedding_mode"},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autoaid_chunks_indexed_total",
			Help: "Total chunks written to the vector store",
		},
	)

	DiagnosisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoaid_diagnosis_total",
			Help: "Total diagnoses generated",
		},
		[]string{"triage_level", "source"},
	)

	DiagnosisConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autoaid_diagnosis_confidence",
			Help:    "Diagnosis confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoaid_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoaid_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoaid_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	AgentActionsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoaid_agent_actions_executed_total",
			Help: "Total agent actions executed",
		},
		[]string{"action", "status"},
	)
)

func Init() {
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(RetrievalTotal)
	prometheus.MustRegister(RetrievalResultsCount)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(ChunksIndexed)
	prometheus.MustRegister(DiagnosisTotal)
	prometheus.MustRegister(DiagnosisConfidence)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(AgentActionsExecuted)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
