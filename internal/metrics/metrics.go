package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	LLMCallsTotal    *prometheus.CounterVec
	LLMCallDuration  *prometheus.HistogramVec
	GradesTotal      *prometheus.CounterVec
	RefinementRounds prometheus.Histogram

	FileOpsTotal *prometheus.CounterVec

	RateLimitHitsTotal *prometheus.CounterVec

	ActiveSessions prometheus.Gauge
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry - для тестов, чтобы не ловить панику повторной регистрации
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_bot_requests_total",
				Help: "Total number of assistant requests by final status",
			},
			[]string{"type", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qa_bot_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"type"},
		),
		RequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "qa_bot_requests_in_flight",
				Help: "Number of requests currently being processed",
			},
		),

		LLMCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_bot_llm_calls_total",
				Help: "Total number of model calls by agent role",
			},
			[]string{"role", "status"},
		),
		LLMCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qa_bot_llm_call_duration_seconds",
				Help:    "Model call duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"role"},
		),
		GradesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_bot_grades_total",
				Help: "Grader verdicts by outcome",
			},
			[]string{"outcome"},
		),
		RefinementRounds: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qa_bot_refinement_iterations",
				Help:    "Grading iterations per quality-controlled request",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
		),

		FileOpsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_bot_file_ops_total",
				Help: "Remote file uploads and deletes",
			},
			[]string{"op", "status"},
		),

		RateLimitHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_bot_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"user_id"},
		),

		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "qa_bot_active_sessions",
				Help: "Number of live chat sessions",
			},
		),
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) RecordRequest(reqType, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(reqType, status).Inc()
	m.RequestDuration.WithLabelValues(reqType).Observe(duration.Seconds())
}

func (m *Metrics) RecordLLMCall(role, status string, duration time.Duration) {
	m.LLMCallsTotal.WithLabelValues(role, status).Inc()
	m.LLMCallDuration.WithLabelValues(role).Observe(duration.Seconds())
}

func (m *Metrics) RecordGrade(outcome string) {
	m.GradesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordIterations(n int) {
	m.RefinementRounds.Observe(float64(n))
}

func (m *Metrics) RecordFileOp(op, status string) {
	m.FileOpsTotal.WithLabelValues(op, status).Inc()
}

func (m *Metrics) RecordRateLimitHit(userID string) {
	m.RateLimitHitsTotal.WithLabelValues(userID).Inc()
}

func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

func (m *Metrics) IncRequestsInFlight() {
	m.RequestsInFlight.Inc()
}

func (m *Metrics) DecRequestsInFlight() {
	m.RequestsInFlight.Dec()
}
