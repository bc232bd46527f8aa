//go:build integration

package broadcast

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/carrysync/carry/pkg/clock"
	"github.com/carrysync/carry/pkg/operation"
)

func startRedis(t *testing.T, ctx context.Context) Config {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return Config{Addr: fmt.Sprintf("%s:%s", host, port.Port()), Channel: "carry:operations:test"}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := startRedis(t, ctx)

	publisher, err := New(ctx, cfg)
	require.NoError(t, err)
	defer publisher.Close()

	subscriber, err := New(ctx, cfg)
	require.NoError(t, err)
	defer subscriber.Close()

	received := make(chan operation.Operation, 1)
	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()
	go func() {
		_ = subscriber.Subscribe(subCtx, func(op operation.Operation) {
			received <- op
		})
	}()

	// Subscribe's first Receive happens asynchronously against the Redis
	// client; give it a moment to register before publishing.
	time.Sleep(200 * time.Millisecond)

	op := operation.Create("op-1", "doc-1", "docs", []byte(`{"title":"hello"}`), 100, clock.WithCounter("node-1", 1))
	require.NoError(t, publisher.Publish(ctx, op))

	select {
	case got := <-received:
		require.Equal(t, op.OpID, got.OpID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for broadcast operation")
	}
}
