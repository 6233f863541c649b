package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ftactive",
			Subsystem: "server",
			Name:      "sessions_total",
			Help:      "Completed control sessions by command and outcome.",
		},
		[]string{"command", "outcome"},
	)
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ftactive",
			Subsystem: "server",
			Name:      "session_duration_seconds",
			Help:      "Wall time of one control+data session.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command", "outcome"},
	)
	transferBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ftactive",
			Subsystem: "server",
			Name:      "transfer_bytes_total",
			Help:      "File content bytes sent over data connections.",
		},
	)
	dataConnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ftactive",
			Subsystem: "server",
			Name:      "data_connect_attempts_total",
			Help:      "Outbound data-channel connect attempts, including retries.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(sessionsTotal, sessionDuration, transferBytes, dataConnectAttempts)
	})
}

func RecordSession(command, outcome string, duration time.Duration) {
	RegisterMetrics()
	sessionsTotal.WithLabelValues(command, outcome).Inc()
	sessionDuration.WithLabelValues(command, outcome).Observe(duration.Seconds())
}

func RecordTransferBytes(n int) {
	RegisterMetrics()
	transferBytes.Add(float64(n))
}

func RecordDataConnectAttempt() {
	RegisterMetrics()
	dataConnectAttempts.Inc()
}
