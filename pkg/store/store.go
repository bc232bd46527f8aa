// Package store implements the Store state machine: the single in-memory
// collection of records and pending operations a node owns, and the entry
// point into reconciliation with a remote peer.
package store

import (
	"encoding/json"

	"github.com/carrysync/carry/pkg/clock"
	"github.com/carrysync/carry/pkg/engineerr"
	"github.com/carrysync/carry/pkg/operation"
	"github.com/carrysync/carry/pkg/reconcile"
	"github.com/carrysync/carry/pkg/record"
	"github.com/carrysync/carry/pkg/schema"
	"github.com/carrysync/carry/pkg/snapshot"
)

// ApplyResult is what a successful local mutation returns: the operation it
// produced (queued for the next push) and the record's resulting state.
type ApplyResult struct {
	Op     operation.Operation
	Record record.Record
}

// Store is one node's view of the world: its schema, its logical clock, its
// records, and the queue of operations not yet acknowledged by the
// canonical peer.
//
// Store is not safe for concurrent use without external synchronization;
// callers that share a Store across goroutines must hold their own mutex
// (see pkg/server, which does exactly that around a single Store per node).
type Store struct {
	schema  schema.Schema
	nodeID  string
	clock   clock.Clock
	records map[operation.Key]record.Record
	lastOps map[operation.Key]operation.Operation

	pending     []operation.Operation
	pendingByID map[string]int // opID -> index into pending, for O(1) dedup/lookup
}

// New creates an empty Store for nodeID against the given schema.
func New(nodeID string, s schema.Schema) *Store {
	return &Store{
		schema:      s,
		nodeID:      nodeID,
		clock:       clock.New(nodeID),
		records:     map[operation.Key]record.Record{},
		lastOps:     map[operation.Key]operation.Operation{},
		pending:     []operation.Operation{},
		pendingByID: map[string]int{},
	}
}

// NodeID returns the store's node identifier.
func (s *Store) NodeID() string { return s.nodeID }

// Clock returns the store's current logical clock.
func (s *Store) Clock() clock.Clock { return s.clock }

// Schema returns the store's schema.
func (s *Store) Schema() schema.Schema { return s.schema }

func (s *Store) tick() (clock.Clock, error) {
	return s.clock.Tick()
}

// Tick advances the store's logical clock by one local event and returns
// the resulting clock, without applying any operation. Callers that need
// a clock value outside of Create/Update/Delete (e.g. to stamp a
// synthetic bookkeeping event) use this directly.
func (s *Store) Tick() (clock.Clock, error) {
	return s.tick()
}

// Create applies a new Create operation. It fails with RecordAlreadyExists
// if any record, active or tombstoned, already occupies the slot —
// resurrecting a tombstone through Create is rejected; that can only ever
// happen as a side effect of Reconcile.
func (s *Store) Create(collection, id string, payload json.RawMessage, timestamp uint64) (ApplyResult, error) {
	key := operation.Key{Collection: collection, RecordID: id}
	if _, ok := s.records[key]; ok {
		return ApplyResult{}, engineerr.RecordAlreadyExists(id)
	}

	c, err := s.tick()
	if err != nil {
		return ApplyResult{}, err
	}
	op := operation.Create(newOpID(s.nodeID, c), id, collection, payload, timestamp, c)
	if err := operation.Validate(s.schema, op); err != nil {
		return ApplyResult{}, err
	}

	rec := record.New(id, collection, payload, timestamp, c)
	s.records[key] = rec
	s.lastOps[key] = op
	s.enqueuePending(op)
	return ApplyResult{Op: op, Record: rec}, nil
}

// Apply dispatches op to Create, Update, or Delete by its Type, against
// the op's own id/collection/payload/baseVersion/timestamp. It is a
// convenience entry point for callers that hold a fully-formed Operation
// (e.g. replaying one read back from a snapshot or wire payload) rather
// than individual fields; it does not reuse op's clock or op_id — the
// dispatched call ticks the store's own clock and mints a fresh op_id, the
// same as if the caller had called Create/Update/Delete directly.
func (s *Store) Apply(op operation.Operation) (ApplyResult, error) {
	switch op.Type {
	case operation.TypeCreate:
		return s.Create(op.Collection, op.ID, op.Payload, op.Timestamp)
	case operation.TypeUpdate:
		return s.Update(op.Collection, op.ID, op.Payload, op.BaseVersion, op.Timestamp)
	case operation.TypeDelete:
		return s.Delete(op.Collection, op.ID, op.BaseVersion, op.Timestamp)
	default:
		return ApplyResult{}, engineerr.InvalidPayload("unknown operation type: " + string(op.Type))
	}
}

// Update applies an Update operation against an existing active record,
// enforcing the optimistic-concurrency baseVersion precondition.
func (s *Store) Update(collection, id string, payload json.RawMessage, baseVersion, timestamp uint64) (ApplyResult, error) {
	key := operation.Key{Collection: collection, RecordID: id}
	existing, ok := s.records[key]
	if !ok {
		return ApplyResult{}, engineerr.RecordNotFound(id)
	}
	if existing.Deleted {
		return ApplyResult{}, engineerr.OperationOnDeleted(id)
	}
	if existing.Version != baseVersion {
		return ApplyResult{}, engineerr.VersionMismatch(existing.Version, baseVersion)
	}

	c, err := s.tick()
	if err != nil {
		return ApplyResult{}, err
	}
	op := operation.Update(newOpID(s.nodeID, c), id, collection, payload, baseVersion, timestamp, c)
	if err := operation.Validate(s.schema, op); err != nil {
		return ApplyResult{}, err
	}

	existing.UpdatePayload(payload, timestamp, c, record.OriginLocal)
	s.records[key] = existing
	s.lastOps[key] = op
	s.enqueuePending(op)
	return ApplyResult{Op: op, Record: existing}, nil
}

// Delete tombstones an existing active record, enforcing the baseVersion
// precondition.
func (s *Store) Delete(collection, id string, baseVersion, timestamp uint64) (ApplyResult, error) {
	key := operation.Key{Collection: collection, RecordID: id}
	existing, ok := s.records[key]
	if !ok {
		return ApplyResult{}, engineerr.RecordNotFound(id)
	}
	if existing.Deleted {
		return ApplyResult{}, engineerr.OperationOnDeleted(id)
	}
	if existing.Version != baseVersion {
		return ApplyResult{}, engineerr.VersionMismatch(existing.Version, baseVersion)
	}

	c, err := s.tick()
	if err != nil {
		return ApplyResult{}, err
	}
	op := operation.Delete(newOpID(s.nodeID, c), id, collection, baseVersion, timestamp, c)
	if err := operation.Validate(s.schema, op); err != nil {
		return ApplyResult{}, err
	}

	existing.MarkDeleted(timestamp, c, record.OriginLocal)
	s.records[key] = existing
	s.lastOps[key] = op
	s.enqueuePending(op)
	return ApplyResult{Op: op, Record: existing}, nil
}

func (s *Store) enqueuePending(op operation.Operation) {
	if _, dup := s.pendingByID[op.OpID]; dup {
		return
	}
	s.pendingByID[op.OpID] = len(s.pending)
	s.pending = append(s.pending, op)
}

// Get returns the active record at (collection, id), or RecordNotFound if
// it does not exist or has been tombstoned.
func (s *Store) Get(collection, id string) (record.Record, error) {
	key := operation.Key{Collection: collection, RecordID: id}
	rec, ok := s.records[key]
	if !ok || rec.Deleted {
		return record.Record{}, engineerr.RecordNotFound(id)
	}
	return rec, nil
}

// GetIncludingDeleted returns the record at (collection, id) regardless of
// tombstone state, with ok=false if no record was ever created there.
func (s *Store) GetIncludingDeleted(collection, id string) (record.Record, bool) {
	key := operation.Key{Collection: collection, RecordID: id}
	rec, ok := s.records[key]
	return rec, ok
}

// Query options control Query's scan of a collection.
type queryOpts struct {
	includeDeleted bool
	filter         func(record.Record) bool
}

// QueryOption configures a Query call.
type QueryOption func(*queryOpts)

// IncludeDeleted makes Query also return tombstoned records.
func IncludeDeleted() QueryOption {
	return func(o *queryOpts) { o.includeDeleted = true }
}

// Filter restricts Query to records matching pred.
func Filter(pred func(record.Record) bool) QueryOption {
	return func(o *queryOpts) { o.filter = pred }
}

// Query scans every record in collection (a full scan; the engine is
// in-memory and targets dataset sizes where this is acceptable), in no
// particular order, applying opts.
func (s *Store) Query(collection string, opts ...QueryOption) []record.Record {
	var o queryOpts
	for _, opt := range opts {
		opt(&o)
	}

	out := make([]record.Record, 0)
	for key, rec := range s.records {
		if key.Collection != collection {
			continue
		}
		if rec.Deleted && !o.includeDeleted {
			continue
		}
		if o.filter != nil && !o.filter(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// PendingOps returns this node's not-yet-acknowledged operations, in the
// order they were applied.
func (s *Store) PendingOps() []operation.Operation {
	out := make([]operation.Operation, len(s.pending))
	copy(out, s.pending)
	return out
}

// Acknowledge removes the given op ids from the pending queue. This is how
// a node learns the canonical peer has durably recorded its operations;
// until acknowledged, an operation stays pending even if it already won
// every reconciliation it went through.
func (s *Store) Acknowledge(opIDs []string) {
	if len(opIDs) == 0 {
		return
	}
	ack := make(map[string]bool, len(opIDs))
	for _, id := range opIDs {
		ack[id] = true
	}
	s.removePending(ack)
}

// ClearPending drops every pending operation unconditionally. Intended for
// tests and for a node that is abandoning its unacknowledged local history
// (e.g. after a destructive re-seed from a snapshot).
func (s *Store) ClearPending() {
	s.pending = []operation.Operation{}
	s.pendingByID = map[string]int{}
}

func (s *Store) removePending(remove map[string]bool) {
	kept := s.pending[:0:0]
	for _, op := range s.pending {
		if remove[op.OpID] {
			continue
		}
		kept = append(kept, op)
	}
	s.pending = kept
	s.pendingByID = map[string]int{}
	for i, op := range s.pending {
		s.pendingByID[op.OpID] = i
	}
}

// Reconcile merges this store's pending local operations with remoteOps
// using strategy, applies the resulting record state, merges the store's
// clock forward past every remote clock observed, and prunes rejected-local
// operations from the pending queue. Accepted-local operations remain
// pending until a later Acknowledge call — reconciliation deciding a local
// op "wins" is not the same as the canonical peer having durably recorded
// it.
func (s *Store) Reconcile(remoteOps []operation.Operation, strategy reconcile.MergeStrategy) (reconcile.Result, error) {
	for _, op := range remoteOps {
		if err := operation.Validate(s.schema, op); err != nil {
			return reconcile.Result{}, err
		}
	}

	r := reconcile.New(s.schema, strategy)
	r.LoadRecords(s.seeds())

	result, final := r.Reconcile(s.pending, remoteOps)

	s.records = map[operation.Key]record.Record{}
	for key, rec := range final {
		s.records[key] = rec
	}

	for _, op := range remoteOps {
		s.clock.Merge(op.Clock)
	}

	rejected := make(map[string]bool, len(result.RejectedLocal))
	for _, id := range result.RejectedLocal {
		rejected[id] = true
	}
	s.removePending(rejected)

	return result, nil
}

// seeds converts the store's current records into reconciler seeds, each
// tagged with the last operation the store applied to it. A record with no
// known last operation (e.g. one imported from a snapshot) gets a synthetic
// Create carrying the reserved seed prefix so it can never collide with a
// real operation id.
func (s *Store) seeds() []reconcile.Seed {
	seeds := make([]reconcile.Seed, 0, len(s.records))
	for key, rec := range s.records {
		source := reconcile.SourceLocal
		if rec.Metadata.Origin != record.OriginLocal {
			source = reconcile.SourceRemote
		}
		lastOp := s.lastOps[key]
		if lastOp.OpID == "" {
			lastOp = operation.Create(operation.SyntheticSeedPrefix+rec.ID, rec.ID, rec.Collection, rec.Payload, rec.Metadata.UpdatedAt, rec.Metadata.Clock)
		}
		seeds = append(seeds, reconcile.Seed{Record: rec, LastOp: lastOp, Source: source})
	}
	return seeds
}

// ExportState produces a canonical Snapshot of the entire store: every
// record (active and tombstoned), grouped by collection, plus the pending
// queue.
func (s *Store) ExportState() snapshot.Snapshot {
	collections := map[string]map[string]record.Record{}
	for key, rec := range s.records {
		if _, ok := collections[key.Collection]; !ok {
			collections[key.Collection] = map[string]record.Record{}
		}
		collections[key.Collection][key.RecordID] = rec
	}

	pending := make([]snapshot.PendingOp, len(s.pending))
	for i, op := range s.pending {
		pending[i] = snapshot.PendingOp{Operation: op, AppliedAt: op.Timestamp}
	}

	return snapshot.Snapshot{
		FormatVersion: snapshot.FormatVersion,
		SchemaVersion: s.schema.SchemaVersion,
		NodeID:        s.nodeID,
		Clock:         s.clock,
		Collections:   collections,
		PendingOps:    pending,
	}
}

// ImportState replaces this store's entire state (clock, records, pending
// queue) with the contents of snap, after checking the format/schema/node
// preconditions and validating every active record's payload. On any
// rejection the store is left untouched.
func (s *Store) ImportState(snap snapshot.Snapshot) error {
	if err := snapshot.Validate(snap, s.schema.SchemaVersion, s.nodeID); err != nil {
		return err
	}
	if err := snapshot.ValidateRecords(s.schema, snap); err != nil {
		return err
	}

	records := map[operation.Key]record.Record{}
	lastOps := map[operation.Key]operation.Operation{}
	for collName, recs := range snap.Collections {
		for id, rec := range recs {
			key := operation.Key{Collection: collName, RecordID: id}
			records[key] = rec
			if rec.Deleted {
				lastOps[key] = operation.Delete(operation.SyntheticSeedPrefix+id, id, collName, rec.Version, rec.Metadata.UpdatedAt, rec.Metadata.Clock)
			} else {
				lastOps[key] = operation.Create(operation.SyntheticSeedPrefix+id, id, collName, rec.Payload, rec.Metadata.UpdatedAt, rec.Metadata.Clock)
			}
		}
	}

	pending := make([]operation.Operation, len(snap.PendingOps))
	pendingByID := map[string]int{}
	for i, p := range snap.PendingOps {
		pending[i] = p.Operation
		pendingByID[p.Operation.OpID] = i
	}

	s.clock = snap.Clock
	s.records = records
	s.lastOps = lastOps
	s.pending = pending
	s.pendingByID = pendingByID
	return nil
}

func newOpID(nodeID string, c clock.Clock) string {
	return nodeID + "-" + fmtUint(c.Counter)
}

func fmtUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
