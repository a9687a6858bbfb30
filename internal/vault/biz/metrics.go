package biz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_operations_total",
			Help: "Vault operations by name and outcome",
		},
		[]string{"operation", "outcome"},
	)

	quotaBytesDelta = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_quota_delta_bytes_total",
			Help: "Bytes charged to or released from owner quotas",
		},
		[]string{"direction"},
	)

	shareResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_share_resolutions_total",
			Help: "Share link resolutions by result",
		},
		[]string{"result"},
	)

	accessLogWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_access_log_write_failures_total",
			Help: "Access log entries that could not be persisted",
		},
	)

	sweeperAbandoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_sweeper_abandoned_total",
			Help: "Stale uploads moved to abandoned by the sweeper",
		},
	)

	sweeperPurgedLogs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_sweeper_purged_logs_total",
			Help: "Expired access log entries removed by the sweeper",
		},
	)

	sweeperErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_sweeper_errors_total",
			Help: "Errors encountered by sweeper tasks",
		},
	)

	sweeperDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vault_sweeper_cycle_duration_seconds",
			Help:    "Duration of sweeper cycles",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func observeOp(op string, err error) {
	operationsTotal.WithLabelValues(op, outcome(err)).Inc()
}

func observeQuota(delta int64) {
	switch {
	case delta > 0:
		quotaBytesDelta.WithLabelValues("charge").Add(float64(delta))
	case delta < 0:
		quotaBytesDelta.WithLabelValues("release").Add(float64(-delta))
	}
}
