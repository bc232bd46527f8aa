/*
Package storage provides BoltDB-backed persistence for a single carry
node's local snapshot.

BoltStore wraps a bbolt database file (<dataDir>/carry.db) that holds the
node's last exported Snapshot: its record collections, logical clock, and
any operations still pending acknowledgement by the canonical peer. This
is the cache a node reads from on startup instead of doing a full Pull,
and writes to on graceful shutdown (serve) or when a CLI command closes
its local store.

# Bucket Layout

	meta                    fixed keys: format_version, schema_version, node_id, clock
	pending                 pending operations, keyed by zero-padded sequence number
	collection:<name>       one bucket per schema collection, keyed by record id

Collection buckets are wiped and rewritten wholesale on every
SaveSnapshot rather than diffed — snapshot writes are infrequent enough
(shutdown, end of a CLI command) that this is simpler and safer than tracking
incremental changes.

# Usage

	bolt, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer bolt.Close()

	snap, err := bolt.LoadSnapshot()
	if err == nil && snap.NodeID == cfg.NodeID {
		st.ImportState(snap)
	}

	// ... later, on shutdown ...
	bolt.SaveSnapshot(st.ExportState())

LoadSnapshot returns an empty, zero-value Snapshot and no error when the
database has never been written to — the caller treats that the same as
starting a brand new node.
*/
package storage
