package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carrysync/carry/pkg/config"
	"github.com/carrysync/carry/pkg/storage"
	"github.com/carrysync/carry/pkg/store"
)

// localStore bundles a node's in-memory Store with the BoltDB handle it was
// loaded from, so a one-shot CLI command can load, mutate, and persist
// without running the long-lived server.
type localStore struct {
	store *store.Store
	bolt  *storage.BoltStore
}

// openLocalStore loads the config, schema, and local BoltDB snapshot named
// by --config, building a Store ready for local mutation or sync.
func openLocalStore(cmd *cobra.Command) (*localStore, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}
	if nodeID, _ := cmd.Flags().GetString("node-id"); nodeID != "" {
		cfg.NodeID = nodeID
	}
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("node id is required (set nodeId in config or pass --node-id)")
	}

	sch, err := loadSchema(cfg.SchemaPath)
	if err != nil {
		return nil, err
	}

	bolt, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open local storage: %w", err)
	}

	st := store.New(cfg.NodeID, sch)
	if snap, err := bolt.LoadSnapshot(); err == nil && snap.NodeID == cfg.NodeID {
		if err := st.ImportState(snap); err != nil {
			bolt.Close()
			return nil, fmt.Errorf("import local snapshot: %w", err)
		}
	}

	return &localStore{store: st, bolt: bolt}, nil
}

// close persists the current store state back to BoltDB and releases the
// handle. Commands that mutate the store call this directly so they can
// report the save error; read-only commands can defer l.bolt.Close() instead.
func (l *localStore) close() error {
	defer l.bolt.Close()
	return l.bolt.SaveSnapshot(l.store.ExportState())
}

func addLocalStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to a YAML config file")
	cmd.Flags().String("node-id", "", "Node ID (overrides config)")
}
