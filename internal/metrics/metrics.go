package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry     *prometheus.Registry
	codesIssued  prometheus.Counter
	codeChecks   *prometheus.CounterVec
	mailAttempts *prometheus.CounterVec
	llmRequests  *prometheus.CounterVec
	llmDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sgq_verification_codes_issued_total",
			Help: "Verification codes issued.",
		}),
		codeChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sgq_verification_checks_total",
			Help: "Verification code checks by outcome.",
		}, []string{"outcome"}),
		mailAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sgq_mail_attempts_total",
			Help: "Mail delivery attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sgq_llm_requests_total",
			Help: "Chat completion requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sgq_llm_request_duration_seconds",
			Help:    "Chat completion latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30},
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.codesIssued,
		m.codeChecks,
		m.mailAttempts,
		m.llmRequests,
		m.llmDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CodeIssued() {
	m.codesIssued.Inc()
}

func (m *Metrics) CodeChecked(outcome string) {
	m.codeChecks.WithLabelValues(outcome).Inc()
}

// MailAttempt matches the mail chain observer signature.
func (m *Metrics) MailAttempt(provider, outcome string) {
	m.mailAttempts.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) LLMRequest(kind, outcome string, elapsed time.Duration) {
	m.llmRequests.WithLabelValues(kind, outcome).Inc()
	m.llmDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
