/*
Package health provides health check mechanisms for monitoring the external
dependencies a carry server replica relies on: the canonical Postgres
operation log, raft peer connectivity, and the local bbolt store.

Three checker types share one Checker interface:

	type Checker interface {
		Check(ctx context.Context) Result
		Type() CheckType
	}

HTTPChecker probes an HTTP endpoint and accepts a configurable status
range. TCPChecker dials a TCP address and only verifies the connection
succeeds. ExecChecker runs a host command (e.g. "pg_isready") and treats
exit code 0 as healthy.

Status wraps a Checker's results over time with hysteresis: a check must
fail Retries times in a row before Status.Healthy flips, so a single
transient failure doesn't flap the reported state. cmd/carry serve runs a
TCPChecker against Postgres on a timer and reports each Result into
pkg/metrics.UpdateComponent, which backs /healthz.
*/
package health
