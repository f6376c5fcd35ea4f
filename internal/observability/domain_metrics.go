package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_questions_total",
			Help: "Total number of natural-language questions processed, by outcome.",
		},
		[]string{"outcome"},
	)
	questionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_question_duration_seconds",
			Help:    "End-to-end question pipeline latency in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	generationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_generation_failures_total",
			Help: "Total number of failed SQL generation attempts.",
		},
	)
	validationBlockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_validation_blocked_total",
			Help: "Total number of generated statements rejected by validation.",
		},
	)
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_cache_lookups_total",
			Help: "Total number of result cache lookups, by outcome.",
		},
		[]string{"outcome"},
	)
	inferenceDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_inference_duration_seconds",
			Help:    "Model inference round-trip latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)
	executionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_execution_duration_seconds",
			Help:    "SQL execution latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
	)
	retrievalPassagesKept = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_retrieval_passages_kept",
			Help:    "Passages per retrieval call that passed the confidence threshold.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
		},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		questionDurationSeconds,
		generationFailuresTotal,
		validationBlockedTotal,
		cacheLookupsTotal,
		inferenceDurationSeconds,
		executionDurationSeconds,
		retrievalPassagesKept,
	)
}

func ObserveQuestion(outcome string, elapsed time.Duration) {
	questionsTotal.WithLabelValues(outcome).Inc()
	questionDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementGenerationFailure() {
	generationFailuresTotal.Inc()
}

func IncrementValidationBlocked() {
	validationBlockedTotal.Inc()
}

func ObserveCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookupsTotal.WithLabelValues(outcome).Inc()
}

func ObserveInference(elapsed time.Duration) {
	inferenceDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveExecution(elapsed time.Duration) {
	executionDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveRetrievalKept(count int) {
	if count < 0 {
		count = 0
	}
	retrievalPassagesKept.Observe(float64(count))
}
