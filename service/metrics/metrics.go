package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitWait *prometheus.HistogramVec

	// Redemption Metrics
	accountsDiscovered     prometheus.Histogram
	envelopesBuiltTotal    *prometheus.CounterVec
	feeLamportsQuotedTotal prometheus.Counter
	submissionsTotal       *prometheus.CounterVec
	confirmationDuration   *prometheus.HistogramVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_rate_limit_wait_seconds",
				Help:    "Time spent waiting on the client-side RPC rate limiter",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"endpoint"},
		),

		// Redemption Metrics
		accountsDiscovered: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "redemption_accounts_discovered",
				Help:    "Number of abandoned token accounts found per discovery request",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
		),
		envelopesBuiltTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redemption_envelopes_built_total",
				Help: "Total number of unsigned redemption envelopes built",
			},
			[]string{"status"},
		),
		feeLamportsQuotedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "redemption_fee_lamports_quoted_total",
				Help: "Sum of service fees placed into built envelopes, in lamports",
			},
		),
		submissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redemption_submissions_total",
				Help: "Total number of signed transaction submissions by outcome",
			},
			[]string{"outcome"},
		),
		confirmationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "redemption_confirmation_duration_seconds",
				Help:    "Time from broadcast until a terminal confirmation outcome",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 90, 120},
			},
			[]string{"outcome"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10, 30, 60},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitWait records time spent blocked on the RPC rate limiter.
func (m *Metrics) RecordRateLimitWait(endpoint string, seconds float64) {
	m.solanaRPCRateLimitWait.WithLabelValues(endpoint).Observe(seconds)
}

// Redemption metric helpers

// RecordAccountsDiscovered records how many abandoned accounts a discovery found.
func (m *Metrics) RecordAccountsDiscovered(count int) {
	m.accountsDiscovered.Observe(float64(count))
}

// RecordEnvelopeBuilt records a build attempt and, on success, the quoted fee.
func (m *Metrics) RecordEnvelopeBuilt(status string, feeLamports uint64) {
	m.envelopesBuiltTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.feeLamportsQuotedTotal.Add(float64(feeLamports))
	}
}

// RecordSubmission records a submission outcome
// ("finalized", "failed_on_chain", "rejected", "timeout", "invalid", "error").
func (m *Metrics) RecordSubmission(outcome string) {
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordConfirmationWait records how long a submission waited for its outcome.
func (m *Metrics) RecordConfirmationWait(outcome string, seconds float64) {
	m.confirmationDuration.WithLabelValues(outcome).Observe(seconds)
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
