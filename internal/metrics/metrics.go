package metrics

import (
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// API
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Count of HTTP requests."},
		[]string{"handler", "method", "code"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms..~10s
		},
		[]string{"handler", "method"},
	)
	WebhookTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_requests_total", Help: "Inbound SMS webhook outcomes."},
		[]string{"result"}, // stored | unsigned_stored | bad_request | parse_failure | unknown_sender | unauthorized | error
	)
	SurveySubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "survey_submissions_total", Help: "Web survey submission outcomes."},
		[]string{"result"}, // ok | invalid | UnknownToken | AlreadyUsed | Expired | error
	)
	FeedbackReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feedback_reports_total", Help: "Feedback report requests."},
		[]string{"result"}, // ok | insufficient_data | unknown_user | error
	)

	// Tokens
	TokensIssued = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "survey_tokens_issued_total", Help: "Survey tokens issued."},
	)
	TokensRedeemed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "survey_tokens_redeemed_total", Help: "Token redemption attempts."},
		[]string{"result"},
	)

	// Dispatch
	DispatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_runs_total", Help: "Dispatch batch runs."},
		[]string{"result"}, // ok | partial | skipped | error
	)
	DispatchMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_messages_total", Help: "Per-user dispatch outcomes."},
		[]string{"kind", "outcome"}, // regular|weekly x sent|token_error|send_error|store_error
	)
	ProviderSendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provider_send_duration_seconds",
			Help:    "Provider send latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms..~40s
		},
	)
	LastDispatch = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "dispatch_last_run_timestamp_seconds", Help: "Unix time of the last dispatch run."},
	)
)

var registerOnce sync.Once

// MustRegister registers default + our collectors. Safe to call repeatedly.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequests, HTTPDuration, WebhookTotal, SurveySubmissions, FeedbackReports,
			TokensIssued, TokensRedeemed,
			DispatchRuns, DispatchMessages, ProviderSendDuration, LastDispatch,
		)
	})
}

// PGXPoolStats exports pgxpool stats as gauges.
type PGXPoolStats struct {
	pool *pgxpool.Pool

	conns          prometheus.Gauge
	idle           prometheus.Gauge
	acquireCount   prometheus.Gauge
	acquireLatency prometheus.Gauge
}

func NewPGXPoolStats(pool *pgxpool.Pool, reg prometheus.Registerer) *PGXPoolStats {
	m := &PGXPoolStats{
		pool: pool,
		conns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_conns", Help: "Total connections in pool.",
		}),
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_idle_conns", Help: "Idle connections in pool.",
		}),
		acquireCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_acquires", Help: "Cumulative pool acquires.",
		}),
		acquireLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_acquire_seconds", Help: "Cumulative acquire latency.",
		}),
	}
	reg.MustRegister(m.conns, m.idle, m.acquireCount, m.acquireLatency)
	return m
}

// Start samples the pool every interval until stop is closed.
func (m *PGXPoolStats) Start(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			m.sample()
		}
	}
}

func (m *PGXPoolStats) sample() {
	s := m.pool.Stat()
	m.conns.Set(float64(s.TotalConns()))
	m.idle.Set(float64(s.IdleConns()))
	// pgxpool reports cumulative values; gauges avoid double counting
	m.acquireCount.Set(float64(s.AcquireCount()))
	m.acquireLatency.Set(s.AcquireDuration().Seconds())
}
