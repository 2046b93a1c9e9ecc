package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		providerAttempts,
		providerRetryDelay,
		providerCallLatency,
		transcriptionPolls,
		streamDeltas,
	)
}

var (
	providerAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_attempts_total",
			Help: "Outbound provider calls by provider and response status class.",
		},
		[]string{"provider", "status_class"},
	)

	providerRetryDelay = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_retry_delay_seconds",
			Help:    "Backoff delay slept before a provider retry.",
			Buckets: []float64{1, 2, 4, 8, 10},
		},
		[]string{"provider"},
	)

	providerCallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_latency_ms",
			Help:    "Provider call latency including retries, in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"provider", "success"},
	)

	transcriptionPolls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transcription_polls",
			Help:    "Status polls issued per transcription job by outcome.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 60},
		},
		[]string{"outcome"},
	)

	streamDeltas = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_deltas_total",
			Help: "Delta chunks forwarded to streaming clients.",
		},
	)
)

// ProviderAttempt counts one outbound call. status 0 means transport failure.
func ProviderAttempt(provider string, status int) {
	providerAttempts.WithLabelValues(norm(provider), statusClass(status)).Inc()
}

func ProviderRetryDelay(provider string, delay time.Duration) {
	providerRetryDelay.WithLabelValues(norm(provider)).Observe(delay.Seconds())
}

func ObserveProviderCall(provider string, elapsed time.Duration, success bool) {
	providerCallLatency.WithLabelValues(norm(provider), strconv.FormatBool(success)).
		Observe(float64(elapsed.Milliseconds()))
}

func TranscriptionPolls(outcome string, polls int) {
	transcriptionPolls.WithLabelValues(norm(outcome)).Observe(float64(polls))
}

func StreamDeltas(count int) {
	streamDeltas.Add(float64(count))
}

func statusClass(status int) string {
	switch {
	case status <= 0:
		return "transport"
	case status == 429:
		return "429"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
