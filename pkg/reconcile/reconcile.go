// Package reconcile implements the deterministic merge of a node's pending
// local operations with an incoming batch of remote operations. It is the
// heart of the engine: given the same multiset of operations, it always
// produces the same final record set and the same conflict report,
// regardless of input order.
package reconcile

import (
	"sort"

	"github.com/carrysync/carry/pkg/clock"
	"github.com/carrysync/carry/pkg/record"
	"github.com/carrysync/carry/pkg/schema"

	"github.com/carrysync/carry/pkg/operation"
)

// MergeStrategy selects how conflicting operations on the same record are
// resolved.
type MergeStrategy string

const (
	// ClockWins picks the operation that sorts later in the operation total
	// order (clock, timestamp, opID). This is the default, causally-sound
	// strategy.
	ClockWins MergeStrategy = "clockWins"
	// TimestampWins picks the operation with the later wall-clock timestamp,
	// falling back to (clock, opID) on a tie. Susceptible to clock skew.
	TimestampWins MergeStrategy = "timestampWins"
)

// ConflictResolution records which side won a detected conflict.
type ConflictResolution string

const (
	ResolutionLocalWins  ConflictResolution = "localWins"
	ResolutionRemoteWins ConflictResolution = "remoteWins"
)

// Conflict is one detected same-record conflict between a local and a
// remote operation.
type Conflict struct {
	LocalOp    operation.Operation `json:"localOp"`
	RemoteOp   operation.Operation `json:"remoteOp"`
	Resolution ConflictResolution  `json:"resolution"`
	WinnerOpID string              `json:"winnerOpId"`
}

// Result is everything reconcile produces besides the final record map:
// which ops were accepted/rejected on each side, the conflicts that were
// resolved, and orphaned updates/deletes that arrived with no matching
// record (see design note in SPEC_FULL.md — this engine surfaces the
// orphan case explicitly rather than silently dropping it).
type Result struct {
	AcceptedLocal  []string   `json:"acceptedLocal"`
	RejectedLocal  []string   `json:"rejectedLocal"`
	AppliedRemote  []string   `json:"appliedRemote"`
	RejectedRemote []string   `json:"rejectedRemote"`
	Conflicts      []Conflict `json:"conflicts"`
	SkippedOrphan  []string   `json:"skippedOrphan"`
}

func newResult() Result {
	return Result{
		AcceptedLocal:  []string{},
		RejectedLocal:  []string{},
		AppliedRemote:  []string{},
		RejectedRemote: []string{},
		Conflicts:      []Conflict{},
		SkippedOrphan:  []string{},
	}
}

// Source tags which side of the merge an operation came from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Seed is an existing record handed to the reconciler before the merge
// begins, along with the operation that last produced it and which side it
// came from (derived from record.Metadata.Origin).
type Seed struct {
	Record record.Record
	LastOp operation.Operation
	Source Source
}

type recordState struct {
	record     record.Record
	lastOp     operation.Operation
	lastSource Source
}

type trackedOp struct {
	op     operation.Operation
	source Source
}

// Reconciler runs one merge. It is a short-lived, single-use value: build
// it, load seeds, call Reconcile once, discard it.
type Reconciler struct {
	schema   schema.Schema
	strategy MergeStrategy
	records  map[operation.Key]*recordState
	result   Result

	acceptedLocalSet  map[string]bool
	rejectedLocalSet  map[string]bool
	appliedRemoteSet  map[string]bool
	rejectedRemoteSet map[string]bool
}

// New creates a Reconciler. schema is borrowed for validation-adjacent type
// information only; the reconciler does not re-validate payloads (the Store
// already did that before admitting an operation as pending).
func New(s schema.Schema, strategy MergeStrategy) *Reconciler {
	return &Reconciler{
		schema:            s,
		strategy:          strategy,
		records:           map[operation.Key]*recordState{},
		result:            newResult(),
		acceptedLocalSet:  map[string]bool{},
		rejectedLocalSet:  map[string]bool{},
		appliedRemoteSet:  map[string]bool{},
		rejectedRemoteSet: map[string]bool{},
	}
}

// LoadRecords seeds the reconciler's working state from existing records.
func (r *Reconciler) LoadRecords(seeds []Seed) {
	for _, seed := range seeds {
		key := operation.Key{Collection: seed.Record.Collection, RecordID: seed.Record.ID}
		r.records[key] = &recordState{record: seed.Record, lastOp: seed.LastOp, lastSource: seed.Source}
	}
}

// Reconcile merges localOps and remoteOps against the seeded state and
// returns the result plus the final record map. It consumes the Reconciler;
// do not call it twice on the same instance.
func (r *Reconciler) Reconcile(localOps, remoteOps []operation.Operation) (Result, map[operation.Key]record.Record) {
	all := make([]trackedOp, 0, len(localOps)+len(remoteOps))
	for _, op := range localOps {
		all = append(all, trackedOp{op: op, source: SourceLocal})
	}
	for _, op := range remoteOps {
		all = append(all, trackedOp{op: op, source: SourceRemote})
	}

	// Sort by (clock, timestamp, opID): the sole source of determinism.
	// sort.SliceStable so that, on the vanishingly unlikely exact tie on
	// all three fields, processing order still doesn't depend on input
	// slice order beyond what was already stable before the sort.
	sort.SliceStable(all, func(i, j int) bool {
		return operation.Less(all[i].op, all[j].op)
	})

	for _, t := range all {
		r.applyTracked(t)
	}

	final := make(map[operation.Key]record.Record, len(r.records))
	for k, v := range r.records {
		final[k] = v.record
	}
	return r.result, final
}

func (r *Reconciler) applyTracked(t trackedOp) {
	key := t.op.Key()
	existing, ok := r.records[key]
	if ok && existing.lastSource != t.source {
		r.handleConflict(t, existing)
		return
	}
	r.applyNoConflict(t)
}

// applyNoConflict handles an operation whose target is either unseen or
// already owned by the same source (no conflict).
func (r *Reconciler) applyNoConflict(t trackedOp) {
	key := t.op.Key()
	_, exists := r.records[key]

	if t.op.Type != operation.TypeCreate && !exists {
		// Update/Delete arrived before its Create (or the Create was
		// dropped some other way). We do not silently succeed: record it
		// as a distinct orphan outcome instead.
		r.result.SkippedOrphan = append(r.result.SkippedOrphan, t.op.OpID)
		return
	}

	r.markAccepted(t)
	r.forceApply(t)
}

func (r *Reconciler) markAccepted(t trackedOp) {
	switch t.source {
	case SourceLocal:
		if !r.acceptedLocalSet[t.op.OpID] {
			r.acceptedLocalSet[t.op.OpID] = true
			r.result.AcceptedLocal = append(r.result.AcceptedLocal, t.op.OpID)
		}
	case SourceRemote:
		if !r.appliedRemoteSet[t.op.OpID] {
			r.appliedRemoteSet[t.op.OpID] = true
			r.result.AppliedRemote = append(r.result.AppliedRemote, t.op.OpID)
		}
	}
}

func (r *Reconciler) handleConflict(t trackedOp, existing *recordState) {
	var localOp, remoteOp operation.Operation
	if t.source == SourceLocal {
		localOp, remoteOp = t.op, existing.lastOp
	} else {
		localOp, remoteOp = existing.lastOp, t.op
	}

	winner, resolution := r.resolveConflict(localOp, remoteOp, t, existing)
	winnerIsLocal := winner.OpID == localOp.OpID

	r.result.Conflicts = append(r.result.Conflicts, Conflict{
		LocalOp:    localOp,
		RemoteOp:   remoteOp,
		Resolution: resolution,
		WinnerOpID: winner.OpID,
	})

	switch resolution {
	case ResolutionLocalWins:
		if !r.rejectedRemoteSet[remoteOp.OpID] {
			r.rejectedRemoteSet[remoteOp.OpID] = true
			r.result.RejectedRemote = append(r.result.RejectedRemote, remoteOp.OpID)
		}
		if !r.acceptedLocalSet[localOp.OpID] {
			r.acceptedLocalSet[localOp.OpID] = true
			r.result.AcceptedLocal = append(r.result.AcceptedLocal, localOp.OpID)
		}
	case ResolutionRemoteWins:
		if !r.rejectedLocalSet[localOp.OpID] {
			r.rejectedLocalSet[localOp.OpID] = true
			r.result.RejectedLocal = append(r.result.RejectedLocal, localOp.OpID)
		}
		r.result.AcceptedLocal = removeID(r.result.AcceptedLocal, localOp.OpID)
		delete(r.acceptedLocalSet, localOp.OpID)
		if !r.appliedRemoteSet[remoteOp.OpID] {
			r.appliedRemoteSet[remoteOp.OpID] = true
			r.result.AppliedRemote = append(r.result.AppliedRemote, remoteOp.OpID)
		}
	}

	winnerIsIncoming := (winnerIsLocal && t.source == SourceLocal) || (!winnerIsLocal && t.source == SourceRemote)
	if winnerIsIncoming {
		r.forceApply(trackedOp{op: winner, source: t.source})
	}
	// Otherwise the existing state already reflects the winner; nothing to
	// mutate.
}

// resolveConflict picks a winner. The tombstone-resurrection rule (see
// SPEC_FULL.md §1 decisions) is checked first and, when it applies,
// overrides the ordinary strategy comparison: a Create can only win
// against an existing tombstone if its clock strictly dominates the
// tombstone's last clock.
func (r *Reconciler) resolveConflict(localOp, remoteOp operation.Operation, incoming trackedOp, existing *recordState) (operation.Operation, ConflictResolution) {
	if incoming.op.Type == operation.TypeCreate && existing.record.Deleted {
		if !clock.Dominates(incoming.op.Clock, existing.record.Metadata.Clock) {
			// Tombstone survives: the non-incoming side is the winner.
			if incoming.source == SourceLocal {
				return remoteOp, ResolutionRemoteWins
			}
			return localOp, ResolutionLocalWins
		}
		// Falls through to ordinary strategy comparison: under ClockWins
		// that selects the incoming Create since its clock dominates;
		// under TimestampWins the timestamps decide.
	}

	switch r.strategy {
	case TimestampWins:
		if localOp.Timestamp == remoteOp.Timestamp {
			if operation.Compare(localOp, remoteOp) >= 0 {
				return localOp, ResolutionLocalWins
			}
			return remoteOp, ResolutionRemoteWins
		}
		if localOp.Timestamp > remoteOp.Timestamp {
			return localOp, ResolutionLocalWins
		}
		return remoteOp, ResolutionRemoteWins
	default: // ClockWins
		if operation.Compare(localOp, remoteOp) >= 0 {
			return localOp, ResolutionLocalWins
		}
		return remoteOp, ResolutionRemoteWins
	}
}

func (r *Reconciler) forceApply(t trackedOp) {
	key := t.op.Key()
	origin := record.OriginRemote
	if t.source == SourceLocal {
		origin = record.OriginLocal
	}

	switch t.op.Type {
	case operation.TypeCreate:
		rec := record.New(t.op.ID, t.op.Collection, t.op.Payload, t.op.Timestamp, t.op.Clock)
		if origin == record.OriginRemote {
			rec.Metadata.Origin = record.OriginRemote
		}
		r.records[key] = &recordState{record: rec, lastOp: t.op, lastSource: t.source}
	case operation.TypeUpdate:
		state, ok := r.records[key]
		if !ok {
			return
		}
		state.record.UpdatePayload(t.op.Payload, t.op.Timestamp, t.op.Clock, origin)
		state.lastOp = t.op
		state.lastSource = t.source
	case operation.TypeDelete:
		state, ok := r.records[key]
		if !ok {
			return
		}
		state.record.MarkDeleted(t.op.Timestamp, t.op.Clock, origin)
		state.lastOp = t.op
		state.lastSource = t.source
	}
}

func removeID(ids []string, target string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
