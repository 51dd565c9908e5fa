// Package metrics exposes Prometheus collectors for the chat service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat modes and outcomes used as label values.
const (
	ModeStream   = "stream"
	ModeBlocking = "blocking"

	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
	OutcomeBlocked  = "blocked"
)

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	chatRequests     *prometheus.CounterVec
	streamTokens     prometheus.Counter
	retrievalResults *prometheus.CounterVec
	backendDuration  *prometheus.HistogramVec
	retrievalLatency prometheus.Histogram
	activeStreams    prometheus.Gauge
	sessionsExpired  prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		chatRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatbot_chat_requests_total",
				Help: "Total number of chat requests",
			},
			[]string{"mode", "outcome"},
		),
		streamTokens: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatbot_stream_tokens_total",
				Help: "Total number of token events relayed to clients",
			},
		),
		retrievalResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatbot_retrieval_results_total",
				Help: "Retrieval lookups by whether any passage passed the threshold",
			},
			[]string{"result"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatbot_backend_duration_seconds",
				Help:    "Generation backend call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		retrievalLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatbot_retrieval_duration_seconds",
				Help:    "Retrieval duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		activeStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatbot_active_streams",
				Help: "Number of chat streams in progress",
			},
		),
		sessionsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatbot_sessions_expired_total",
				Help: "Total number of sessions removed by expiry",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatbot_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatbot_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.chatRequests,
			m.streamTokens,
			m.retrievalResults,
			m.backendDuration,
			m.retrievalLatency,
			m.activeStreams,
			m.sessionsExpired,
			m.httpRequests,
			m.httpDuration,
		)
	}
	return m
}

// Handler serves the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordChat counts a finished chat request.
func (m *Metrics) RecordChat(mode, outcome string) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(mode, outcome).Inc()
}

// AddStreamTokens counts relayed token events.
func (m *Metrics) AddStreamTokens(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.streamTokens.Add(float64(n))
}

// RecordRetrieval records one retrieval lookup.
func (m *Metrics) RecordRetrieval(hits int, d time.Duration) {
	if m == nil {
		return
	}
	result := "hit"
	if hits == 0 {
		result = "miss"
	}
	m.retrievalResults.WithLabelValues(result).Inc()
	m.retrievalLatency.Observe(d.Seconds())
}

// ObserveBackend records the duration of a generation call.
func (m *Metrics) ObserveBackend(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// StreamStarted increments the active stream gauge and returns its release.
func (m *Metrics) StreamStarted() func() {
	if m == nil {
		return func() {}
	}
	m.activeStreams.Inc()
	return m.activeStreams.Dec
}

// AddSessionsExpired counts sessions removed by expiry.
func (m *Metrics) AddSessionsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsExpired.Add(float64(n))
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
