// Package clock implements the Lamport-style logical clock that gives the
// sync engine a total order over distributed events.
package clock

import (
	"math"

	"github.com/carrysync/carry/pkg/engineerr"
)

// Clock is a (counter, nodeID) pair. Total order is by counter first, then
// by byte-lexicographic comparison of nodeID.
type Clock struct {
	NodeID  string `json:"nodeId"`
	Counter uint64 `json:"counter"`
}

// New returns a clock for nodeID starting at counter 0.
func New(nodeID string) Clock {
	return Clock{NodeID: nodeID, Counter: 0}
}

// WithCounter returns a clock for nodeID at a specific counter value.
func WithCounter(nodeID string, counter uint64) Clock {
	return Clock{NodeID: nodeID, Counter: counter}
}

// Tick increments the counter by one and returns the new value. It reports
// engineerr.ClockOverflow if the counter is already at math.MaxUint64 — a
// clock lifetime of 2^64 ticks is unreachable in practice but must never
// silently wrap.
func (c *Clock) Tick() (Clock, error) {
	if c.Counter == math.MaxUint64 {
		return Clock{}, engineerr.ClockOverflow()
	}
	c.Counter++
	return *c, nil
}

// Merge raises this clock's counter to the max of itself and other. NodeID
// is invariant.
func (c *Clock) Merge(other Clock) {
	if other.Counter > c.Counter {
		c.Counter = other.Counter
	}
}

// Compare returns -1, 0, or 1 ordering a before b: counters first, then
// nodeID byte-lexicographically.
func Compare(a, b Clock) int {
	if a.Counter != b.Counter {
		if a.Counter < b.Counter {
			return -1
		}
		return 1
	}
	switch {
	case a.NodeID < b.NodeID:
		return -1
	case a.NodeID > b.NodeID:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b in the total order.
func Less(a, b Clock) bool {
	return Compare(a, b) < 0
}

// HappenedBefore is strict less-than on counter alone.
func HappenedBefore(a, b Clock) bool {
	return a.Counter < b.Counter
}

// IsConcurrentWith is true iff counters are equal and node ids differ.
func IsConcurrentWith(a, b Clock) bool {
	return a.Counter == b.Counter && a.NodeID != b.NodeID
}

// Dominates reports whether a strictly dominates b: a happened after b,
// which for this engine's single-scalar clock means a's counter is strictly
// greater than b's. Concurrent clocks (equal counters, different node ids)
// never dominate each other, whatever Compare's node-id tie-break says.
// Used to decide tombstone resurrection (see pkg/reconcile).
func Dominates(a, b Clock) bool {
	return HappenedBefore(b, a)
}
