package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	EndpointLatency *prometheus.HistogramVec

	// Proof flows
	VerificationOutcomes *prometheus.CounterVec
	VerifierLatency      *prometheus.HistogramVec
	RecordWrites         *prometheus.CounterVec

	// Wallet sign-in
	SIWEOutcomes *prometheus.CounterVec

	// Mint
	MintAttempts        *prometheus.CounterVec
	MintOutcomes        *prometheus.CounterVec
	MintsInFlight       prometheus.Gauge
	ConfirmationLatency prometheus.Histogram

	// Media
	EmbedRequests *prometheus.CounterVec
	EmbedLatency  prometheus.Histogram
	EmbedBreaker  prometheus.Gauge

	RateLimited *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deepname_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		VerificationOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "deepname_verifications_total",
			Help: "Proof flow outcomes by kind and terminal state",
		}, []string{"kind", "state"}),
		VerifierLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deepname_verifier_latency_seconds",
			Help:    "Latency of calls to proof verification collaborators",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"kind"}),
		RecordWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "deepname_verification_record_writes_total",
			Help: "Verification record writes by kind and result (stored, superseded)",
		}, []string{"kind", "result"}),
		SIWEOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "deepname_siwe_total",
			Help: "Sign-in with Ethereum attempts by outcome",
		}, []string{"outcome"}),
		MintAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "deepname_mint_attempts_total",
			Help: "Mint triggers by admission result (accepted, duplicate, missing_records, invalid)",
		}, []string{"result"}),
		MintOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "deepname_mint_outcomes_total",
			Help: "Terminal mint outcomes by state and failure class",
		}, []string{"state", "failure"}),
		MintsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "deepname_mints_in_flight",
			Help: "Mint attempts submitted and awaiting confirmation",
		}),
		ConfirmationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "deepname_mint_confirmation_seconds",
			Help:    "Time from submission to first confirmation",
			Buckets: []float64{1, 2, 5, 10, 15, 30, 60, 120, 300},
		}),
		EmbedRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "deepname_embed_requests_total",
			Help: "Calls to the embedding service by outcome",
		}, []string{"outcome"}),
		EmbedLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "deepname_embed_latency_seconds",
			Help:    "Latency of embedding service calls",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		EmbedBreaker: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "deepname_embed_breaker_open",
			Help: "1 while the embedding service circuit is open",
		}),
		RateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "deepname_rate_limited_total",
			Help: "Requests rejected by the rate limiter by endpoint class",
		}, []string{"class"}),
	}
}

func (m *Metrics) IncrementRateLimited(class string) {
	m.RateLimited.WithLabelValues(class).Inc()
}

func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

func (m *Metrics) IncrementVerification(kind, state string) {
	m.VerificationOutcomes.WithLabelValues(kind, state).Inc()
}

func (m *Metrics) ObserveVerifierLatency(kind string, durationSeconds float64) {
	m.VerifierLatency.WithLabelValues(kind).Observe(durationSeconds)
}

func (m *Metrics) IncrementRecordWrite(kind, result string) {
	m.RecordWrites.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) IncrementSIWE(outcome string) {
	m.SIWEOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementMintAttempt(result string) {
	m.MintAttempts.WithLabelValues(result).Inc()
}

// MintSubmitted marks an attempt as awaiting confirmation.
func (m *Metrics) MintSubmitted() {
	m.MintsInFlight.Inc()
}

// MintFinished records a terminal outcome. submitted reports whether the
// attempt had reached the chain and so was counted in flight.
func (m *Metrics) MintFinished(state, failure string, submitted bool, confirmSeconds float64) {
	m.MintOutcomes.WithLabelValues(state, failure).Inc()
	if submitted {
		m.MintsInFlight.Dec()
	}
	if state == "success" {
		m.ConfirmationLatency.Observe(confirmSeconds)
	}
}

func (m *Metrics) IncrementEmbed(outcome string) {
	m.EmbedRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveEmbedLatency(durationSeconds float64) {
	m.EmbedLatency.Observe(durationSeconds)
}

func (m *Metrics) SetEmbedBreakerOpen(open bool) {
	if open {
		m.EmbedBreaker.Set(1)
		return
	}
	m.EmbedBreaker.Set(0)
}
