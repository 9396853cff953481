package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docledger"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "lifecycle_operations_total", Help: "Lifecycle operations by audit action and result."},
		[]string{"action", "result"},
	)
	AuditFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "audit_append_failures_total", Help: "Audit appends that failed, by action."},
		[]string{"action"},
	)
	Purges = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "purges_total", Help: "Physical purges by outcome."},
		[]string{"outcome"},
	)
	SweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "purge_sweeps_total", Help: "Purge sweeps by result."},
		[]string{"result"},
	)
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: namespace, Name: "purge_sweep_duration_seconds", Help: "Wall time of one purge sweep.", Buckets: prometheus.DefBuckets},
	)
	LockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: namespace, Name: "document_lock_wait_seconds", Help: "Time spent waiting for a per-document lock.", Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8)},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(Operations)
	reg.MustRegister(AuditFailures)
	reg.MustRegister(Purges)
	reg.MustRegister(SweepRuns)
	reg.MustRegister(SweepDuration)
	reg.MustRegister(LockWait)
}
