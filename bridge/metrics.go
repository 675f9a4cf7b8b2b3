package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics instruments the supervisor. A nil *metrics is inert, so
// instrumentation is pay-for-play via WithMetrics.
type metrics struct {
	handshakeAttempts prometheus.Counter
	handshakeRetries  prometheus.Counter
	terminalFailures  prometheus.Counter
	queries           prometheus.Counter
	queryErrors       prometheus.Counter
	cancellations     prometheus.Counter
	queryDuration     prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		handshakeAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duckbridge",
			Name:      "handshake_attempts_total",
			Help:      "Bridge establishment attempts, including the single retry.",
		}),
		handshakeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duckbridge",
			Name:      "handshake_retries_total",
			Help:      "Times the full establishment sequence was re-run after a failure.",
		}),
		terminalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duckbridge",
			Name:      "handshake_terminal_failures_total",
			Help:      "Establishment failures surfaced to the caller after the retry.",
		}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duckbridge",
			Name:      "queries_total",
			Help:      "Queries submitted through the bridge.",
		}),
		queryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duckbridge",
			Name:      "query_errors_total",
			Help:      "Queries that surfaced an execution error.",
		}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duckbridge",
			Name:      "query_cancellations_total",
			Help:      "Explicit cancelQuery requests.",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "duckbridge",
			Name:      "query_duration_seconds",
			Help:      "Wall-clock duration of bridge queries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	reg.MustRegister(
		m.handshakeAttempts, m.handshakeRetries, m.terminalFailures,
		m.queries, m.queryErrors, m.cancellations, m.queryDuration,
	)
	return m
}

func (m *metrics) attempt(retry bool) {
	if m == nil {
		return
	}
	m.handshakeAttempts.Inc()
	if retry {
		m.handshakeRetries.Inc()
	}
}

func (m *metrics) terminalFailure() {
	if m == nil {
		return
	}
	m.terminalFailures.Inc()
}

func (m *metrics) query(took time.Duration, err error) {
	if m == nil {
		return
	}
	m.queries.Inc()
	m.queryDuration.Observe(took.Seconds())
	if err != nil {
		m.queryErrors.Inc()
	}
}

func (m *metrics) cancellation() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
}
