/*
Package metrics provides Prometheus metrics collection and exposition for
carry.

The metrics package defines and registers all carry metrics using the
Prometheus client library, giving observability into store size,
reconciliation activity, sync transport traffic, and Raft leadership
state. Metrics are exposed via an HTTP endpoint for scraping.

# Metrics Catalog

Store metrics:

  - carry_records_total{collection,state} (Gauge) — records per collection
    by state (active/deleted)
  - carry_pending_ops_total (Gauge) — local operations not yet acknowledged
    by the canonical peer
  - carry_operations_applied_total{type,outcome} (Counter) — operations
    applied locally, by type (create/update/delete) and outcome
  - carry_operation_apply_duration_seconds{type} (Histogram) — time to
    apply a single operation

Reconciliation metrics:

  - carry_reconciliation_duration_seconds (Histogram) — reconciliation
    cycle duration
  - carry_reconciliation_cycles_total (Counter) — reconciliation cycles
    completed
  - carry_conflicts_total{resolution} (Counter) — conflicts resolved
    during reconciliation; pkg/server records every conflict under
    resolution="resolved"
  - carry_orphan_ops_total (Counter) — update/delete operations skipped
    because no record existed for them

Sync transport metrics:

  - carry_push_requests_total{status} (Counter)
  - carry_pull_requests_total{status} (Counter)
  - carry_sync_request_duration_seconds{endpoint} (Histogram)

Cluster / leadership metrics:

  - carry_raft_is_leader (Gauge) — 1 if this node is the Raft-elected
    canonical peer, 0 otherwise
  - carry_raft_peers_total (Gauge)
  - carry_broadcast_messages_total{direction} (Counter) — pub/sub
    broadcast traffic, by direction (publish/receive on the Redis bus,
    out for pkg/server's local WebSocket fan-out)

# Usage

	import "github.com/carrysync/carry/pkg/metrics"

	metrics.RecordsTotal.WithLabelValues("docs", "active").Set(42)
	metrics.OperationsAppliedTotal.WithLabelValues("create", "accepted").Inc()

	timer := metrics.NewTimer()
	applyOperation()
	timer.ObserveDurationVec(metrics.OperationApplyDuration, "create")

	http.Handle("/metrics", metrics.Handler())

# Design Patterns

All metrics are registered once via MustRegister in the package init
function, so callers never need to register anything themselves — just
reference the package-level variable. The Timer helper avoids repeating
time.Since(start).Seconds() at every call site.

Keep label cardinality bounded: collection names and operation types are
fine, node/operation ids are not — those belong in logs, not labels.
*/
package metrics
