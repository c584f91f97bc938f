// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doktran_provider_requests_total",
			Help: "Total number of requests sent to translation providers",
		},
		[]string{"provider", "status"},
	)

	providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doktran_provider_request_duration_seconds",
			Help:    "Duration of translation provider requests in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"provider", "status"},
	)

	charactersTranslated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doktran_characters_translated_total",
			Help: "Characters submitted to translation providers",
		},
		[]string{"provider"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "doktran_provider_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)

	speechSynthesesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doktran_speech_syntheses_total",
			Help: "Total number of speech synthesis requests",
		},
		[]string{"provider", "status"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doktran_translation_memory_lookups_total",
			Help: "Translation memory lookups by result",
		},
		[]string{"result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doktran_http_requests_total",
			Help: "HTTP requests served by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doktran_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordProviderRequest records one call to a translation provider.
func RecordProviderRequest(provider string, duration time.Duration, success bool, chars int) {
	s := status(success)
	providerRequestsTotal.WithLabelValues(provider, s).Inc()
	providerRequestDuration.WithLabelValues(provider, s).Observe(duration.Seconds())
	if success {
		charactersTranslated.WithLabelValues(provider).Add(float64(chars))
	}
}

// SetBreakerState publishes a circuit breaker transition.
func SetBreakerState(provider string, state int) {
	breakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordSpeech records one speech synthesis call.
func RecordSpeech(provider string, success bool) {
	speechSynthesesTotal.WithLabelValues(provider, status(success)).Inc()
}

// RecordCacheLookup records a translation memory hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
