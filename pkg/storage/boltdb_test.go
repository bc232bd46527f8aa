package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carrysync/carry/pkg/clock"
	"github.com/carrysync/carry/pkg/operation"
	"github.com/carrysync/carry/pkg/record"
	"github.com/carrysync/carry/pkg/snapshot"
)

func testRecord(title string, c clock.Clock) record.Record {
	payload, _ := json.Marshal(map[string]string{"title": title})
	return record.Record{
		Collection: "docs",
		ID:         "doc-1",
		Version:    1,
		Payload:    payload,
		Metadata:   record.NewLocalMetadata(100, c),
	}
}

func TestSaveThenLoadSnapshotRoundTrips(t *testing.T) {
	dir := t.TempDir()
	bolt, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer bolt.Close()

	c := clock.WithCounter("node-1", 3)
	rec := testRecord("hello", c)
	op := operation.Create("op-1", "doc-1", "docs", rec.Payload, 100, c)

	snap := snapshot.Snapshot{
		FormatVersion: snapshot.FormatVersion,
		SchemaVersion: 1,
		NodeID:        "node-1",
		Clock:         c,
		Collections:   map[string]map[string]record.Record{"docs": {"doc-1": rec}},
		PendingOps:    []snapshot.PendingOp{{Operation: op, AppliedAt: 100}},
	}

	require.NoError(t, bolt.SaveSnapshot(snap))

	got, err := bolt.LoadSnapshot()
	require.NoError(t, err)

	assert.Equal(t, "node-1", got.NodeID)
	assert.Equal(t, c, got.Clock)
	assert.Equal(t, uint32(1), got.SchemaVersion)
	require.Len(t, got.PendingOps, 1)
	assert.Equal(t, "op-1", got.PendingOps[0].Operation.OpID)
	require.Contains(t, got.Collections, "docs")
	assert.Equal(t, rec.Payload, got.Collections["docs"]["doc-1"].Payload)
}

func TestLoadSnapshotEmptyDatabase(t *testing.T) {
	dir := t.TempDir()
	bolt, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer bolt.Close()

	snap, err := bolt.LoadSnapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.NodeID)
	assert.Empty(t, snap.Collections)
}

func TestSaveSnapshotOverwritesPreviousCollections(t *testing.T) {
	dir := t.TempDir()
	bolt, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer bolt.Close()

	c := clock.WithCounter("node-1", 1)
	first := snapshot.Snapshot{
		NodeID:      "node-1",
		Clock:       c,
		Collections: map[string]map[string]record.Record{"docs": {"doc-1": testRecord("first", c)}},
	}
	require.NoError(t, bolt.SaveSnapshot(first))

	second := snapshot.Snapshot{
		NodeID:      "node-1",
		Clock:       c,
		Collections: map[string]map[string]record.Record{"notes": {"note-1": testRecord("second", c)}},
	}
	require.NoError(t, bolt.SaveSnapshot(second))

	got, err := bolt.LoadSnapshot()
	require.NoError(t, err)
	assert.NotContains(t, got.Collections, "docs")
	assert.Contains(t, got.Collections, "notes")
}
