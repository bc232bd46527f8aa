// Package operation defines the immutable Create/Update/Delete variants
// that express every change the engine can apply, plus the total order
// used both for pending-queue ordering and for reconciliation.
package operation

import (
	"encoding/json"
	"fmt"

	"github.com/carrysync/carry/pkg/clock"
	"github.com/carrysync/carry/pkg/engineerr"
	"github.com/carrysync/carry/pkg/schema"
)

// Type discriminates the three operation variants on the wire.
type Type string

const (
	TypeCreate Type = "create"
	TypeUpdate Type = "update"
	TypeDelete Type = "delete"
)

// Operation is a tagged union over Create, Update, and Delete. Which of the
// payload/baseVersion fields is meaningful depends on Type (Create: Payload;
// Update: Payload and BaseVersion; Delete: BaseVersion); code must match
// exhaustively on Type rather than introduce a polymorphic base.
type Operation struct {
	Type        Type            `json:"type"`
	OpID        string          `json:"opId"`
	ID          string          `json:"id"`
	Collection  string          `json:"collection"`
	Timestamp   uint64          `json:"timestamp"`
	Clock       clock.Clock     `json:"clock"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	BaseVersion uint64          `json:"baseVersion,omitempty"`
}

// Create builds a create operation.
func Create(opID, id, collection string, payload json.RawMessage, timestamp uint64, c clock.Clock) Operation {
	return Operation{Type: TypeCreate, OpID: opID, ID: id, Collection: collection, Payload: payload, Timestamp: timestamp, Clock: c}
}

// Update builds an update operation.
func Update(opID, id, collection string, payload json.RawMessage, baseVersion uint64, timestamp uint64, c clock.Clock) Operation {
	return Operation{Type: TypeUpdate, OpID: opID, ID: id, Collection: collection, Payload: payload, BaseVersion: baseVersion, Timestamp: timestamp, Clock: c}
}

// Delete builds a delete operation.
func Delete(opID, id, collection string, baseVersion uint64, timestamp uint64, c clock.Clock) Operation {
	return Operation{Type: TypeDelete, OpID: opID, ID: id, Collection: collection, BaseVersion: baseVersion, Timestamp: timestamp, Clock: c}
}

// Key identifies the (collection, record) pair an operation targets.
type Key struct {
	Collection string
	RecordID   string
}

// Key returns the (collection, record id) this operation targets.
func (op Operation) Key() Key {
	return Key{Collection: op.Collection, RecordID: op.ID}
}

// Compare orders two operations by (clock, timestamp, opID), the sole
// source of determinism for reconciliation.
func Compare(a, b Operation) int {
	if c := clock.Compare(a.Clock, b.Clock); c != 0 {
		return c
	}
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	switch {
	case a.OpID < b.OpID:
		return -1
	case a.OpID > b.OpID:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b in the operation total
// order.
func Less(a, b Operation) bool {
	return Compare(a, b) < 0
}

// SyntheticSeedPrefix is the reserved op_id prefix used for synthetic
// Create operations the reconciler fabricates to seed existing records
// (see pkg/reconcile). Real operations must never use this prefix; Validate
// enforces the reservation by construction.
const SyntheticSeedPrefix = "__existing__"

// Validate checks the operation's collection against schema and, for
// Create/Update, validates the payload. It panics if OpID carries the
// reserved synthetic-seed prefix, since that would let a real operation
// collide with the reconciler's internal seeding convention.
func Validate(s schema.Schema, op Operation) error {
	if len(op.OpID) >= len(SyntheticSeedPrefix) && op.OpID[:len(SyntheticSeedPrefix)] == SyntheticSeedPrefix {
		panic(fmt.Sprintf("operation.Validate: op_id %q uses the reserved synthetic-seed prefix %q", op.OpID, SyntheticSeedPrefix))
	}

	coll, ok := s.Collection(op.Collection)
	if !ok {
		return engineerr.CollectionNotFound(op.Collection)
	}

	switch op.Type {
	case TypeCreate, TypeUpdate:
		return coll.ValidatePayload(op.Payload)
	case TypeDelete:
		return nil
	default:
		return engineerr.InvalidPayload(fmt.Sprintf("unknown operation type %q", op.Type))
	}
}
