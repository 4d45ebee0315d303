package game

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roundtable_state_cache_hits_total",
		Help: "State lookups served from an exact checkpoint.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roundtable_state_cache_misses_total",
		Help: "State lookups that folded at least one round.",
	})
	foldedRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roundtable_state_cache_folded_rounds",
		Help:    "Rounds folded per cache miss.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
	})
)
