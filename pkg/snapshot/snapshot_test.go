package snapshot

import (
	"encoding/json"
	"testing"

	"github.com/carrysync/carry/pkg/clock"
	"github.com/carrysync/carry/pkg/engineerr"
	"github.com/carrysync/carry/pkg/record"
	"github.com/carrysync/carry/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() schema.Schema {
	return schema.New(1).WithCollection(schema.NewCollection("docs",
		schema.Required("title", schema.FieldString)))
}

func payload(title string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"title": title})
	return json.RawMessage(b)
}

func TestRecordCountsDeriveFromCollections(t *testing.T) {
	active := record.New("a", "docs", payload("a"), 100, clock.New("n"))
	tombstoned := record.New("b", "docs", payload("b"), 100, clock.New("n"))
	tombstoned.MarkDeleted(101, clock.New("n"), record.OriginLocal)

	s := Snapshot{
		Collections: map[string]map[string]record.Record{
			"docs": {"a": active, "b": tombstoned},
		},
	}
	assert.Equal(t, 2, s.RecordCount())
	assert.Equal(t, 1, s.ActiveRecordCount())
}

func TestMarshalIsOrderedByCollectionAndRecordKeys(t *testing.T) {
	s := Snapshot{
		FormatVersion: 1, SchemaVersion: 1, NodeID: "n", Clock: clock.New("n"),
		Collections: map[string]map[string]record.Record{
			"zeta":  {"z1": record.New("z1", "zeta", payload("z"), 100, clock.New("n"))},
			"alpha": {"a2": record.New("a2", "alpha", payload("a2"), 100, clock.New("n")), "a1": record.New("a1", "alpha", payload("a1"), 100, clock.New("n"))},
		},
		PendingOps: []PendingOp{},
	}
	b, err := s.MarshalCanonicalJSON()
	require.NoError(t, err)

	text := string(b)
	alphaIdx := indexOf(text, `"alpha"`)
	zetaIdx := indexOf(text, `"zeta"`)
	require.True(t, alphaIdx >= 0 && zetaIdx >= 0)
	assert.Less(t, alphaIdx, zetaIdx)

	a1Idx := indexOf(text, `"a1"`)
	a2Idx := indexOf(text, `"a2"`)
	assert.Less(t, a1Idx, a2Idx)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestValidateSchemaVersionMismatch(t *testing.T) {
	s := Snapshot{SchemaVersion: 2, NodeID: "n", FormatVersion: 1}
	err := Validate(s, 1, "n")
	require.Error(t, err)
	assert.Equal(t, engineerr.KindSchemaVersionMismatch, engineerr.KindOf(err))
}

func TestValidateNodeIDMismatch(t *testing.T) {
	s := Snapshot{SchemaVersion: 1, NodeID: "other", FormatVersion: 1}
	err := Validate(s, 1, "n")
	require.Error(t, err)
	assert.Equal(t, engineerr.KindInvalidSnapshot, engineerr.KindOf(err))
}

func TestValidateFutureFormatVersionRejected(t *testing.T) {
	s := Snapshot{SchemaVersion: 1, NodeID: "n", FormatVersion: 99}
	err := Validate(s, 1, "n")
	require.Error(t, err)
	assert.Equal(t, engineerr.KindInvalidSnapshot, engineerr.KindOf(err))
}

func TestValidateRecordsRejectsBadPayload(t *testing.T) {
	s := Snapshot{
		Collections: map[string]map[string]record.Record{
			"docs": {"a": record.New("a", "docs", json.RawMessage(`{}`), 100, clock.New("n"))},
		},
	}
	err := ValidateRecords(testSchema(), s)
	require.Error(t, err)
	assert.Equal(t, engineerr.KindMissingRequiredField, engineerr.KindOf(err))
}

func TestValidateRecordsSkipsTombstones(t *testing.T) {
	tombstoned := record.New("a", "docs", json.RawMessage(`{}`), 100, clock.New("n"))
	tombstoned.MarkDeleted(101, clock.New("n"), record.OriginLocal)
	s := Snapshot{
		Collections: map[string]map[string]record.Record{"docs": {"a": tombstoned}},
	}
	require.NoError(t, ValidateRecords(testSchema(), s))
}

func TestUnmarshalRoundTrip(t *testing.T) {
	s := Snapshot{
		FormatVersion: 1, SchemaVersion: 1, NodeID: "n", Clock: clock.New("n"),
		Collections: map[string]map[string]record.Record{
			"docs": {"a": record.New("a", "docs", payload("hi"), 100, clock.New("n"))},
		},
		PendingOps: []PendingOp{},
	}
	b, err := s.MarshalCanonicalJSON()
	require.NoError(t, err)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, s.NodeID, got.NodeID)
	assert.Equal(t, s.RecordCount(), got.RecordCount())
}
