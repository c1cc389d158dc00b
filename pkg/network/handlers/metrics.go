package handlers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/eigerco/appealproxy/pkg/network/protocol"
)

var (
	requestsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "appealproxy",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "RPC requests served by kind and result code",
	}, []string{"kind", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "appealproxy",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Time spent serving RPC requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
)

func observeRequest(kind protocol.StreamKind, err error, started time.Time) {
	code := "ok"
	if err != nil {
		code = NewRemoteError(err).Code
	}
	requestsServed.WithLabelValues(kind.String(), code).Inc()
	requestDuration.WithLabelValues(kind.String()).Observe(time.Since(started).Seconds())
}
