package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(recommendationCacheHits, recommendationCacheMisses)
}

var (
	recommendationCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_cache_hits_total",
			Help: "Recommendation requests answered from the in-process cache.",
		},
	)

	recommendationCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_cache_misses_total",
			Help: "Recommendation requests that recomputed the ranking.",
		},
	)
)

func IncRecommendationCacheHit()  { recommendationCacheHits.Inc() }
func IncRecommendationCacheMiss() { recommendationCacheMisses.Inc() }
