package cluster

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestBootstrapSingleNodeBecomesLeader(t *testing.T) {
	c := New(Config{NodeID: "node-1", BindAddr: freePort(t), DataDir: t.TempDir()})

	require.NoError(t, c.Bootstrap())
	defer c.Shutdown()

	assert.Eventually(t, c.IsLeader, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, c.bindAddr, c.LeaderAddr())
}

func TestBumpEpochRequiresLeadership(t *testing.T) {
	c := New(Config{NodeID: "node-1", BindAddr: freePort(t), DataDir: t.TempDir()})
	err := c.BumpEpoch(1)
	assert.Error(t, err)
}

func TestBumpEpochCommitsThroughRaft(t *testing.T) {
	c := New(Config{NodeID: "node-1", BindAddr: freePort(t), DataDir: t.TempDir()})
	require.NoError(t, c.Bootstrap())
	defer c.Shutdown()

	require.Eventually(t, c.IsLeader, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, c.BumpEpoch(5))
	assert.Equal(t, uint64(5), c.fsm.currentEpoch())
}

func TestAddVoterRequiresLeadership(t *testing.T) {
	c := New(Config{NodeID: "node-1", BindAddr: freePort(t), DataDir: t.TempDir()})
	err := c.AddVoter("node-2", "127.0.0.1:9999")
	assert.Error(t, err)
}
