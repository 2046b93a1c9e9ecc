package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(cacheLookups)
}

var cacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "result_cache_lookups_total",
		Help: "Result cache lookups by task and outcome.",
	},
	[]string{"task", "result"},
)

func CacheLookup(task string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(norm(task), result).Inc()
}
