// Package record defines the versioned, tombstoneable document stored by
// the engine.
package record

import (
	"encoding/json"

	"github.com/carrysync/carry/pkg/clock"
)

// Origin marks whether a record (or the op that last touched it) came from
// this node or from a peer.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Metadata carries the bookkeeping fields that travel with every Record.
type Metadata struct {
	CreatedAt uint64      `json:"createdAt"`
	UpdatedAt uint64      `json:"updatedAt"`
	Origin    Origin      `json:"origin"`
	Clock     clock.Clock `json:"clock"`
}

// NewLocalMetadata builds Metadata for a record created on this node.
func NewLocalMetadata(timestamp uint64, c clock.Clock) Metadata {
	return Metadata{CreatedAt: timestamp, UpdatedAt: timestamp, Origin: OriginLocal, Clock: c}
}

// NewRemoteMetadata builds Metadata for a record seeded from a peer.
func NewRemoteMetadata(timestamp uint64, c clock.Clock) Metadata {
	return Metadata{CreatedAt: timestamp, UpdatedAt: timestamp, Origin: OriginRemote, Clock: c}
}

// touch advances Metadata for a modification.
func (m *Metadata) touch(timestamp uint64, c clock.Clock, origin Origin) {
	m.UpdatedAt = timestamp
	m.Clock = c
	m.Origin = origin
}

// Record is one versioned document in a collection.
type Record struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Version    uint64          `json:"version"`
	Payload    json.RawMessage `json:"payload"`
	Metadata   Metadata        `json:"metadata"`
	Deleted    bool            `json:"deleted"`
}

// New creates a brand-new record at version 1, locally originated.
func New(id, collection string, payload json.RawMessage, timestamp uint64, c clock.Clock) Record {
	return Record{
		ID:         id,
		Collection: collection,
		Version:    1,
		Payload:    payload,
		Metadata:   NewLocalMetadata(timestamp, c),
		Deleted:    false,
	}
}

// IsActive reports whether the record has not been tombstoned.
func (r Record) IsActive() bool {
	return !r.Deleted
}

// UpdatePayload replaces the payload wholesale, bumps the version, and
// updates metadata. Callers are responsible for checking r.Deleted and the
// base-version precondition before calling this (see pkg/store.Apply).
func (r *Record) UpdatePayload(payload json.RawMessage, timestamp uint64, c clock.Clock, origin Origin) {
	r.Payload = payload
	r.Version++
	r.Metadata.touch(timestamp, c, origin)
}

// MarkDeleted tombstones the record, bumping its version. Callers are
// responsible for the precondition checks (see pkg/store.Apply).
func (r *Record) MarkDeleted(timestamp uint64, c clock.Clock, origin Origin) {
	r.Deleted = true
	r.Version++
	r.Metadata.touch(timestamp, c, origin)
}

// Clone returns a deep-enough copy safe to hand to another goroutine —
// Payload is immutable json.RawMessage so a shallow struct copy suffices.
func (r Record) Clone() Record {
	return r
}
