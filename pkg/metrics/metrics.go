// Package metrics defines and registers the Prometheus metrics exposed by
// a carry node: store/reconciliation activity, sync transport traffic, and
// cluster leadership state.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics
	RecordsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "carry_records_total",
			Help: "Total number of records by collection and state",
		},
		[]string{"collection", "state"},
	)

	PendingOpsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "carry_pending_ops_total",
			Help: "Number of local operations not yet acknowledged by the canonical peer",
		},
	)

	OperationsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carry_operations_applied_total",
			Help: "Total operations applied locally by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	OperationApplyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carry_operation_apply_duration_seconds",
			Help:    "Time taken to apply a single operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// Reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carry_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "carry_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	ConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carry_conflicts_total",
			Help: "Total number of conflicts resolved during reconciliation, by resolution",
		},
		[]string{"resolution"},
	)

	OrphanOpsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "carry_orphan_ops_total",
			Help: "Total update/delete operations skipped because no record existed for them",
		},
	)

	// Sync transport metrics
	PushRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carry_push_requests_total",
			Help: "Total push requests handled, by status",
		},
		[]string{"status"},
	)

	PullRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carry_pull_requests_total",
			Help: "Total pull requests handled, by status",
		},
		[]string{"status"},
	)

	SyncRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carry_sync_request_duration_seconds",
			Help:    "Push/pull request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Cluster / leadership metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "carry_raft_is_leader",
			Help: "Whether this node is the Raft-elected canonical peer (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "carry_raft_peers_total",
			Help: "Total number of Raft peers participating in leader election",
		},
	)

	BroadcastMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carry_broadcast_messages_total",
			Help: "Total pub/sub broadcast messages by direction",
		},
		[]string{"direction"},
	)
)

func init() {
	prometheus.MustRegister(
		RecordsTotal,
		PendingOpsTotal,
		OperationsAppliedTotal,
		OperationApplyDuration,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		ConflictsTotal,
		OrphanOpsTotal,
		PushRequestsTotal,
		PullRequestsTotal,
		SyncRequestDuration,
		RaftLeader,
		RaftPeers,
		BroadcastMessagesTotal,
	)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
