package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carrysync/carry/pkg/clock"
	"github.com/carrysync/carry/pkg/operation"
	"github.com/carrysync/carry/pkg/schema"
	"github.com/carrysync/carry/pkg/store"
)

func testSchema() schema.Schema {
	return schema.New(1).WithCollection(schema.NewCollection("docs",
		schema.Required("title", schema.FieldString)))
}

func TestPushSendsPendingOpsAndAcknowledges(t *testing.T) {
	st := store.New("node-1", testSchema())
	_, err := st.Create("docs", "doc-1", json.RawMessage(`{"title":"hello"}`), 100)
	require.NoError(t, err)
	require.Len(t, st.PendingOps(), 1)

	var gotPayload pushPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/push", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		resp := pushResult{Accepted: []string{gotPayload.Operations[0].OpID}, ServerClock: 1}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, st, Options{})
	result, err := c.Push(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "node-1", gotPayload.NodeID)
	assert.Len(t, result.Accepted, 1)
	assert.Empty(t, st.PendingOps(), "acknowledged op should be cleared from the pending queue")
}

func TestPullReconcilesRemoteOperations(t *testing.T) {
	st := store.New("node-1", testSchema())

	remoteOp := operation.Create("remote-op-1", "doc-2", "docs", json.RawMessage(`{"title":"from peer"}`), 50, clock.WithCounter("peer-1", 1))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pull", r.URL.Path)
		resp := pullResult{Operations: []operation.Operation{remoteOp}, SyncToken: "tok-1"}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, st, Options{})
	result, err := c.Pull(t.Context(), 100)
	require.NoError(t, err)

	assert.Contains(t, result.AppliedRemote, "remote-op-1")
	assert.Equal(t, "tok-1", c.syncToken)

	rec, err := st.Get("docs", "doc-2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"from peer"}`, string(rec.Payload))
}

func TestPullRejectsNonOKStatus(t *testing.T) {
	st := store.New("node-1", testSchema())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, st, Options{})
	_, err := c.Pull(t.Context(), 100)
	assert.Error(t, err)
}
