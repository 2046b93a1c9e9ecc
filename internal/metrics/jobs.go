package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(jobsCompleted, httpRequests)
}

var (
	jobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Async jobs reaching a terminal status.",
		},
		[]string{"kind", "status"},
	)

	httpRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "HTTP request duration in milliseconds.",
			Buckets: []float64{5, 25, 100, 250, 1000, 5000, 15000, 60000},
		},
		[]string{"method", "route", "status"},
	)
)

func JobCompleted(kind, status string) {
	jobsCompleted.WithLabelValues(norm(kind), norm(status)).Inc()
}

func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, norm(route), strconv.Itoa(status)).
		Observe(float64(elapsed.Milliseconds()))
}
