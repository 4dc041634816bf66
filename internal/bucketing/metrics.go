package bucketing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// searchTotal counts finished searches by result
	searchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abgoat_seed_search_total",
		Help: "Total rerandomization searches by result",
	}, []string{"result"})

	// candidateTotal counts evaluated seed candidates by outcome
	candidateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abgoat_seed_candidates_total",
		Help: "Total seed candidates by outcome",
	}, []string{"outcome"})

	// searchDuration tracks wall time of a full search
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "abgoat_seed_search_duration_seconds",
		Help:    "Rerandomization search duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
	})

	// bestScore records the winning worst-case statistic of each search
	bestScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "abgoat_seed_search_best_score",
		Help:    "Best (lowest) worst-case balance statistic per search",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 3, 5},
	})
)
