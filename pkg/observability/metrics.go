package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Call metrics
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Subsystem: "transport",
			Name:      "calls_total",
			Help:      "Total number of unary calls by terminal status",
		},
		[]string{"service", "method", "code"},
	)

	CallRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Subsystem: "transport",
			Name:      "retries_total",
			Help:      "Total number of retried call attempts",
		},
		[]string{"service", "method"},
	)

	CallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "switchboard",
			Subsystem: "transport",
			Name:      "call_latency_seconds",
			Help:      "Unary call latency in seconds, retries included",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"service", "method"},
	)

	SandboxResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Subsystem: "transport",
			Name:      "sandbox_responses_total",
			Help:      "Total number of calls answered by the sandbox",
		},
	)

	// Stream metrics
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "switchboard",
			Subsystem: "stream",
			Name:      "active",
			Help:      "Number of currently open streams",
		},
	)

	StreamChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Subsystem: "stream",
			Name:      "chunks_total",
			Help:      "Total number of stream chunks delivered",
		},
		[]string{"service", "method"},
	)

	StreamReopens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Subsystem: "stream",
			Name:      "reopens_total",
			Help:      "Total number of stream re-establishments after retryable failures",
		},
		[]string{"service", "method"},
	)

	// Credential metrics
	CredentialAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Subsystem: "auth",
			Name:      "acquisitions_total",
			Help:      "Total number of credential acquisitions",
		},
		[]string{"result"}, // "success" or "failure"
	)

	// Circuit breaker metrics
	BreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Subsystem: "breaker",
			Name:      "state_changes_total",
			Help:      "Total number of circuit breaker state changes",
		},
		[]string{"from_state", "to_state"},
	)
)
