package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/carrysync/carry/pkg/record"
	"github.com/carrysync/carry/pkg/snapshot"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketMeta    = []byte("meta")
	bucketPending = []byte("pending")

	collectionBucketPrefix = []byte("collection:")

	metaKeyFormatVersion = []byte("format_version")
	metaKeySchemaVersion = []byte("schema_version")
	metaKeyNodeID        = []byte("node_id")
	metaKeyClock         = []byte("clock")
)

// BoltStore is the local, durable cache for one node's Store: a bbolt file
// holding its latest snapshot so a restart doesn't require a full Pull from
// the canonical peer.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a carry.db file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "carry.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketPending); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func collectionBucketName(collection string) []byte {
	return append(append([]byte{}, collectionBucketPrefix...), collection...)
}

// SaveSnapshot persists snap as the node's latest durable state. Each
// collection gets its own bucket, wiped and rewritten wholesale — snapshots
// are infrequent enough (on graceful shutdown / command exit) that this is
// simpler and safer than diffing.
func (s *BoltStore) SaveSnapshot(snap snapshot.Snapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		clockBytes, err := json.Marshal(snap.Clock)
		if err != nil {
			return err
		}
		if err := meta.Put(metaKeyClock, clockBytes); err != nil {
			return err
		}
		if err := meta.Put(metaKeyNodeID, []byte(snap.NodeID)); err != nil {
			return err
		}
		if err := meta.Put(metaKeySchemaVersion, []byte(strconv.FormatUint(uint64(snap.SchemaVersion), 10))); err != nil {
			return err
		}
		if err := meta.Put(metaKeyFormatVersion, []byte(strconv.FormatUint(uint64(snap.FormatVersion), 10))); err != nil {
			return err
		}

		if err := deleteCollectionBuckets(tx); err != nil {
			return err
		}
		for collection, records := range snap.Collections {
			b, err := tx.CreateBucket(collectionBucketName(collection))
			if err != nil {
				return err
			}
			for id, rec := range records {
				data, err := json.Marshal(rec)
				if err != nil {
					return err
				}
				if err := b.Put([]byte(id), data); err != nil {
					return err
				}
			}
		}

		if err := tx.DeleteBucket(bucketPending); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		pb, err := tx.CreateBucket(bucketPending)
		if err != nil {
			return err
		}
		for i, p := range snap.PendingOps {
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := pb.Put([]byte(fmt.Sprintf("%020d", i)), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func deleteCollectionBuckets(tx *bolt.Tx) error {
	var names [][]byte
	err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
		if bytes.HasPrefix(name, collectionBucketPrefix) {
			names = append(names, append([]byte{}, name...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := tx.DeleteBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshot reads back the last snapshot saved with SaveSnapshot. If no
// snapshot was ever saved, it returns an empty Snapshot and no error — the
// caller is starting fresh.
func (s *BoltStore) LoadSnapshot() (snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	snap.Collections = map[string]map[string]record.Record{}

	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return nil
		}
		if clockBytes := meta.Get(metaKeyClock); clockBytes != nil {
			if err := json.Unmarshal(clockBytes, &snap.Clock); err != nil {
				return err
			}
		}
		snap.NodeID = string(meta.Get(metaKeyNodeID))
		if v := meta.Get(metaKeySchemaVersion); v != nil {
			n, err := strconv.ParseUint(string(v), 10, 32)
			if err != nil {
				return err
			}
			snap.SchemaVersion = uint32(n)
		}
		if v := meta.Get(metaKeyFormatVersion); v != nil {
			n, err := strconv.ParseUint(string(v), 10, 32)
			if err != nil {
				return err
			}
			snap.FormatVersion = uint32(n)
		}

		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if !bytes.HasPrefix(name, collectionBucketPrefix) {
				return nil
			}
			collection := string(name[len(collectionBucketPrefix):])
			records := map[string]record.Record{}
			err := b.ForEach(func(k, v []byte) error {
				var rec record.Record
				if err := json.Unmarshal(v, &rec); err != nil {
					return err
				}
				records[string(k)] = rec
				return nil
			})
			if err != nil {
				return err
			}
			if len(records) > 0 {
				snap.Collections[collection] = records
			}
			return nil
		})
	})
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	err = s.db.View(func(tx *bolt.Tx) error {
		pb := tx.Bucket(bucketPending)
		if pb == nil {
			return nil
		}
		return pb.ForEach(func(_, v []byte) error {
			var p snapshot.PendingOp
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			snap.PendingOps = append(snap.PendingOps, p)
			return nil
		})
	})
	return snap, err
}
