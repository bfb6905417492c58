package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anthropic_bridge_requests_total",
			Help: "Total number of requests",
		},
		[]string{"endpoint", "mode", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anthropic_bridge_requests_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{1, 10, 30, 60, 120, 240, 600},
		},
		[]string{"endpoint", "mode"},
	)

	StreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anthropic_bridge_stream_events_total",
			Help: "Total number of Anthropic SSE events emitted to clients",
		},
		[]string{"event_type"},
	)

	UpstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anthropic_bridge_upstream_errors_total",
			Help: "Total number of upstream failures by kind",
		},
		[]string{"kind"},
	)

	ValidationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anthropic_bridge_validation_failures_total",
			Help: "Total number of rejected Anthropic requests",
		},
		[]string{"path"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anthropic_bridge_tokens_total",
			Help: "Total tokens reported by the upstream",
		},
		[]string{"direction"}, // "input" or "output"
	)
)

// Metrics records bridge metrics. All methods are no-ops when disabled.
type Metrics struct {
	enabled bool
}

func New(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

// RecordRequest records one finished request. mode is "stream" or "json".
func (m *Metrics) RecordRequest(endpoint, mode string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}
	RequestsTotal.WithLabelValues(endpoint, mode, strconv.Itoa(statusCode)).Inc()
	RequestDuration.WithLabelValues(endpoint, mode).Observe(duration.Seconds())
}

// RecordStreamEvents records a batch of emitted Anthropic SSE events.
func (m *Metrics) RecordStreamEvents(eventType string, count int) {
	if !m.enabled || count == 0 {
		return
	}
	StreamEventsTotal.WithLabelValues(eventType).Add(float64(count))
}

// RecordUpstreamError records an upstream failure by taxonomy kind.
func (m *Metrics) RecordUpstreamError(kind string) {
	if !m.enabled {
		return
	}
	UpstreamErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordValidationFailure records a rejected request by offending path.
func (m *Metrics) RecordValidationFailure(path string) {
	if !m.enabled {
		return
	}
	if path == "" {
		path = "body"
	}
	ValidationFailuresTotal.WithLabelValues(path).Inc()
}

// RecordTokens records token usage reported by the upstream.
func (m *Metrics) RecordTokens(inputTokens, outputTokens int) {
	if !m.enabled {
		return
	}
	if inputTokens > 0 {
		TokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		TokensTotal.WithLabelValues("output").Add(float64(outputTokens))
	}
}
