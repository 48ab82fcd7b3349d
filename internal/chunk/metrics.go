package chunk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// buildsTotal counts finished builds.
	// Labels: agent, outcome
	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chunker",
		Subsystem: "learning",
		Name:      "builds_total",
		Help:      "Chunk builds by terminal outcome",
	}, []string{"agent", "outcome"})

	// rulesLearned counts rules that production memory accepted.
	// Labels: agent, type (chunk, justification)
	rulesLearned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chunker",
		Subsystem: "learning",
		Name:      "rules_total",
		Help:      "Rules learned by type",
	}, []string{"agent", "type"})

	// groundsPerBuild tracks the size of the ground set when grounds exist.
	groundsPerBuild = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chunker",
		Subsystem: "learning",
		Name:      "grounds",
		Help:      "Ground conditions per build",
		Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
	}, []string{"agent"})

	// instantiationsTraced tracks how many firings one build walked through.
	instantiationsTraced = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chunker",
		Subsystem: "learning",
		Name:      "instantiations_traced",
		Help:      "Instantiations backtraced per build",
		Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
	}, []string{"agent"})

	// buildDuration measures wall time per build.
	buildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chunker",
		Subsystem: "learning",
		Name:      "build_duration_seconds",
		Help:      "Chunk build latency in seconds",
		Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	}, []string{"agent"})
)
