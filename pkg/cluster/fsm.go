package cluster

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/raft"
)

// epochFSM is a minimal Raft FSM that tracks nothing beyond a leadership
// epoch counter. Engine operations never flow through Raft — the
// deterministic reconciler is the sole mechanism by which those converge
// (see pkg/reconcile); Raft here exists only so a set of server replicas
// can agree on which of them is the canonical peer.
type epochFSM struct {
	mu    sync.Mutex
	epoch uint64
	ready int32
}

type epochCommand struct {
	Epoch uint64 `json:"epoch"`
}

func (f *epochFSM) Apply(log *raft.Log) interface{} {
	var cmd epochCommand
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return err
	}
	f.mu.Lock()
	if cmd.Epoch > f.epoch {
		f.epoch = cmd.Epoch
	}
	f.mu.Unlock()
	atomic.StoreInt32(&f.ready, 1)
	return nil
}

func (f *epochFSM) currentEpoch() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.epoch
}

func (f *epochFSM) Snapshot() (raft.FSMSnapshot, error) {
	return &epochSnapshot{epoch: f.currentEpoch()}, nil
}

func (f *epochFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var snap epochCommand
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return err
	}
	f.mu.Lock()
	f.epoch = snap.Epoch
	f.mu.Unlock()
	return nil
}

type epochSnapshot struct {
	epoch uint64
}

func (s *epochSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(epochCommand{Epoch: s.epoch}); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *epochSnapshot) Release() {}
