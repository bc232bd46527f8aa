//go:build integration

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/carrysync/carry/pkg/clock"
	"github.com/carrysync/carry/pkg/operation"
	"github.com/carrysync/carry/pkg/persistence/postgres"
	"github.com/carrysync/carry/pkg/schema"
	"github.com/carrysync/carry/pkg/store"
)

func startPostgres(t *testing.T, ctx context.Context) postgres.Config {
	t.Helper()

	c, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("carry_test"),
		tcpostgres.WithUsername("carry"),
		tcpostgres.WithPassword("carry"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return postgres.Config{
		Host: host, Port: port.Int(), Database: "carry_test", User: "carry", Password: "carry",
		SSLMode: "disable", MaxConns: 5, MinConns: 1, MaxConnLifetime: time.Hour, ConnectTimeout: 10 * time.Second,
	}
}

func testSchema() schema.Schema {
	return schema.New(1).WithCollection(schema.NewCollection("docs",
		schema.Required("title", schema.FieldString)))
}

func TestPushThenPullRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := postgres.Open(ctx, startPostgres(t, ctx))
	require.NoError(t, err)
	defer pool.Close()
	opLog := postgres.NewOperationLog(pool)

	st := store.New("server-1", testSchema())
	srv := New(st, opLog, nil, Config{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	op := operation.Create("op-1", "doc-1", "docs", json.RawMessage(`{"title":"hello"}`), 100, clock.WithCounter("client-1", 1))
	pushReq := PushRequest{NodeID: "client-1", Operations: []operation.Operation{op}}
	body, _ := json.Marshal(pushReq)

	resp, err := http.Post(ts.URL+"/push", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pushResp PushResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pushResp))
	require.Contains(t, pushResp.Accepted, "op-1")
	require.Empty(t, pushResp.Rejected)

	pullResp, err := http.Get(ts.URL + "/pull?limit=10")
	require.NoError(t, err)
	defer pullResp.Body.Close()
	require.Equal(t, http.StatusOK, pullResp.StatusCode)

	var pulled PullResponse
	require.NoError(t, json.NewDecoder(pullResp.Body).Decode(&pulled))
	require.Len(t, pulled.Operations, 1)
	require.Equal(t, "op-1", pulled.Operations[0].OpID)
	require.NotEmpty(t, pulled.SyncToken)
}

func TestPushIsIdempotentOnReplay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := postgres.Open(ctx, startPostgres(t, ctx))
	require.NoError(t, err)
	defer pool.Close()
	opLog := postgres.NewOperationLog(pool)

	st := store.New("server-1", testSchema())
	srv := New(st, opLog, nil, Config{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	op := operation.Create("op-1", "doc-1", "docs", json.RawMessage(`{"title":"hello"}`), 100, clock.WithCounter("client-1", 1))
	pushReq := PushRequest{NodeID: "client-1", Operations: []operation.Operation{op}}
	body, _ := json.Marshal(pushReq)

	for i := 0; i < 2; i++ {
		resp, err := http.Post(ts.URL+"/push", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		var pushResp PushResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&pushResp))
		resp.Body.Close()
		require.Contains(t, pushResp.Accepted, "op-1")
	}
}
