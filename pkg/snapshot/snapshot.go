// Package snapshot defines the canonical, byte-deterministic serialization
// of a Store: the format used for persistence and for bootstrapping a new
// replica.
package snapshot

import (
	"encoding/json"

	"github.com/carrysync/carry/pkg/clock"
	"github.com/carrysync/carry/pkg/engineerr"
	"github.com/carrysync/carry/pkg/operation"
	"github.com/carrysync/carry/pkg/record"
	"github.com/carrysync/carry/pkg/schema"
)

// FormatVersion is the current snapshot wire format. ImportState rejects
// any snapshot whose FormatVersion exceeds this.
const FormatVersion uint32 = 1

// PendingOp pairs a not-yet-acknowledged operation with the timestamp at
// which it was applied locally.
type PendingOp struct {
	Operation operation.Operation `json:"operation"`
	AppliedAt uint64              `json:"appliedAt"`
}

// Snapshot is the canonical export of a Store. Collections is a map of
// collection name to a map of record id to Record; encoding/json sorts
// string map keys on Marshal, so two Snapshots with identical logical
// content always produce byte-identical JSON regardless of the order
// records were created in.
type Snapshot struct {
	FormatVersion uint32                            `json:"formatVersion"`
	SchemaVersion uint32                             `json:"schemaVersion"`
	NodeID        string                             `json:"nodeId"`
	Clock         clock.Clock                        `json:"clock"`
	Collections   map[string]map[string]record.Record `json:"collections"`
	PendingOps    []PendingOp                         `json:"pendingOps"`
}

// RecordCount returns the total number of records across all collections,
// active and tombstoned.
func (s Snapshot) RecordCount() int {
	n := 0
	for _, recs := range s.Collections {
		n += len(recs)
	}
	return n
}

// ActiveRecordCount returns the number of non-tombstoned records.
func (s Snapshot) ActiveRecordCount() int {
	n := 0
	for _, recs := range s.Collections {
		for _, rec := range recs {
			if !rec.Deleted {
				n++
			}
		}
	}
	return n
}

// MarshalCanonicalJSON serializes the snapshot. Canonical ordering at the
// collection and record-id levels comes for free from encoding/json's
// sorted map-key output; struct fields serialize in declaration order,
// which is already fixed and needs no further sorting.
func (s Snapshot) MarshalCanonicalJSON() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal parses a canonical snapshot JSON document.
func Unmarshal(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, engineerr.InvalidSnapshot(err.Error())
	}
	return s, nil
}

// Validate checks the format/schema/node preconditions import_state
// requires before touching any record. It does not validate record
// payloads; call ValidateRecords for that, separately, so a caller can
// distinguish "this snapshot is not even for me" from "this snapshot's
// data is stale relative to my schema".
func Validate(s Snapshot, expectedSchemaVersion uint32, expectedNodeID string) error {
	if s.SchemaVersion != expectedSchemaVersion {
		return engineerr.SchemaVersionMismatch(expectedSchemaVersion, s.SchemaVersion)
	}
	if s.NodeID != expectedNodeID {
		return engineerr.InvalidSnapshot("node id mismatch: snapshot is for " + s.NodeID + ", not " + expectedNodeID)
	}
	if s.FormatVersion > FormatVersion {
		return engineerr.InvalidSnapshot("snapshot format version is newer than this build supports")
	}
	return nil
}

// ValidateRecords validates every active record's payload against the
// given schema. Tombstoned records carry no payload obligation.
func ValidateRecords(sch schema.Schema, s Snapshot) error {
	for collection, recs := range s.Collections {
		for _, rec := range recs {
			if rec.Deleted {
				continue
			}
			if err := sch.ValidatePayload(collection, rec.Payload); err != nil {
				return err
			}
		}
	}
	return nil
}
