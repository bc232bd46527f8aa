// Package cluster elects the canonical peer among a set of server
// replicas using Raft. It replicates nothing about engine state — that
// convergence is the deterministic reconciler's job (pkg/reconcile) — it
// only decides which replica currently holds the "canonical peer" role
// spec.md §4.5 refers to when describing how pending local operations are
// eventually acknowledged.
package cluster

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"

	"github.com/carrysync/carry/pkg/log"
	"github.com/carrysync/carry/pkg/metrics"
)

// Config configures a cluster member.
type Config struct {
	NodeID   string `yaml:"nodeId"`
	BindAddr string `yaml:"bindAddr"`
	DataDir  string `yaml:"dataDir"`
}

// Cluster wraps a Raft instance scoped to leadership election.
type Cluster struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft   *raft.Raft
	fsm    *epochFSM
	logger zerolog.Logger
}

// New creates a cluster member without starting Raft.
func New(cfg Config) *Cluster {
	return &Cluster{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      &epochFSM{},
		logger:   log.WithComponent("cluster"),
	}
}

func raftConfig(nodeID string) *raft.Config {
	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(nodeID)
	cfg.HeartbeatTimeout = 500 * time.Millisecond
	cfg.ElectionTimeout = 500 * time.Millisecond
	cfg.CommitTimeout = 50 * time.Millisecond
	cfg.LeaderLeaseTimeout = 250 * time.Millisecond
	return cfg
}

func (c *Cluster) newRaft() (*raft.Raft, *raft.NetworkTransport, error) {
	addr, err := net.ResolveTCPAddr("tcp", c.bindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(c.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("create transport: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(c.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("create snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-log.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("create stable store: %w", err)
	}
	r, err := raft.NewRaft(raftConfig(c.nodeID), c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, nil, fmt.Errorf("create raft: %w", err)
	}
	return r, transport, nil
}

// Bootstrap starts Raft as the sole member of a brand new cluster.
func (c *Cluster) Bootstrap() error {
	r, transport, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raft.ServerID(c.nodeID), Address: transport.LocalAddr()}},
	})
	if err := future.Error(); err != nil {
		return fmt.Errorf("bootstrap cluster: %w", err)
	}
	c.logger.Info().Str("node_id", c.nodeID).Msg("cluster bootstrapped")
	return nil
}

// Join starts Raft and relies on the existing leader to AddVoter this node.
func (c *Cluster) Join() error {
	r, _, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r
	c.logger.Info().Str("node_id", c.nodeID).Msg("joined cluster, awaiting voter addition")
	return nil
}

// AddVoter adds a peer to the cluster. Only the current leader can do this.
func (c *Cluster) AddVoter(nodeID, address string) error {
	if !c.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", c.LeaderAddr())
	}
	future := c.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	return future.Error()
}

// IsLeader reports whether this replica is the current canonical peer.
func (c *Cluster) IsLeader() bool {
	if c.raft == nil {
		return false
	}
	return c.raft.State() == raft.Leader
}

// LeaderAddr returns the bind address of the current canonical peer.
func (c *Cluster) LeaderAddr() string {
	if c.raft == nil {
		return ""
	}
	return string(c.raft.Leader())
}

// BumpEpoch commits a new leadership epoch through Raft. Callers use this
// as a cheap liveness probe of the Raft log without touching engine state.
func (c *Cluster) BumpEpoch(epoch uint64) error {
	if !c.IsLeader() {
		return fmt.Errorf("not the leader")
	}
	data, err := json.Marshal(epochCommand{Epoch: epoch})
	if err != nil {
		return err
	}
	future := c.raft.Apply(data, 10*time.Second)
	return future.Error()
}

// ReportMetrics updates the raft gauges in pkg/metrics each time it is
// called; nothing in this repository calls it on a schedule.
func (c *Cluster) ReportMetrics() {
	if c.raft == nil {
		return
	}
	if c.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}
	future := c.raft.GetConfiguration()
	if future.Error() == nil {
		metrics.RaftPeers.Set(float64(len(future.Configuration().Servers)))
	}
}

// Shutdown stops Raft.
func (c *Cluster) Shutdown() error {
	if c.raft == nil {
		return nil
	}
	return c.raft.Shutdown().Error()
}
