package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultd_operations_total",
		Help: "Ledger operations processed, by vault, operation and outcome",
	}, []string{"vault", "op", "outcome"})

	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultd_rejections_total",
		Help: "Rejected operations by error code",
	}, []string{"vault", "code"})

	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultd_reserve_sweeps_total",
		Help: "Automatic reserve sweeps triggered",
	}, []string{"vault", "asset"})

	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaultd_request_latency_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
