package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// MissesReported counts miss intakes accepted by the engine
	MissesReported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leakwatch",
			Name:      "misses_reported_total",
			Help:      "Total number of missed attacks reported to the engine",
		},
	)

	// CyclesCompleted counts processing cycles by outcome
	CyclesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leakwatch",
			Name:      "cycles_total",
			Help:      "Total number of processing cycles by outcome",
		},
		[]string{"outcome"},
	)

	// VariationsGenerated counts paraphrases accepted from the generator
	VariationsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leakwatch",
			Name:      "variations_generated_total",
			Help:      "Total number of adversarial variations persisted",
		},
	)

	// KeywordsLearned counts keywords folded into the rule set
	KeywordsLearned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leakwatch",
			Name:      "keywords_learned_total",
			Help:      "Total number of keywords extracted and persisted",
		},
	)

	// Detections counts detector verdicts by method
	Detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leakwatch",
			Name:      "detections_total",
			Help:      "Total number of leak verdicts by detection method",
		},
		[]string{"method"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// This function is idempotent and can be called multiple times safely.
// Duplicate registration panics, which surfaces wiring bugs immediately.
func InitMetrics() {
	once.Do(func() {
		prometheus.MustRegister(
			MissesReported,
			CyclesCompleted,
			VariationsGenerated,
			KeywordsLearned,
			Detections,
		)
	})
}
