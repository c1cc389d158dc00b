package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "appealproxy"
	subsystem        = "proxy"
)

var (
	arbitrationRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "arbitration_requests_total",
			Help:      "Total number of arbitration requests opened",
		},
	)

	contributionsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "contributions_total",
			Help:      "Total number of accepted appeal contributions",
		},
		[]string{"side"},
	)

	rulingsFunded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "rulings_funded_total",
			Help:      "Total number of rulings that reached their funding target",
		},
	)

	escalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "escalations_total",
			Help:      "Total number of rounds closed by an appeal",
		},
	)

	rulings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "rulings_total",
			Help:      "Total number of final rulings received, by resolution",
		},
		[]string{"resolution"},
	)

	withdrawals = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "withdrawals_total",
			Help:      "Total number of paid withdrawals",
		},
	)

	transferFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "transfer_failures_total",
			Help:      "Total number of failed outgoing transfers",
		},
		[]string{"kind"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Time taken by proxy entry points",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
