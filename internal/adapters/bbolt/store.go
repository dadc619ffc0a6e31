// Package bbolt implements ports.SnapshotStore using bbolt (embedded B+ tree).
// Each snapshot key gets its own sub-bucket under "snapshots" holding the
// encoded records and the time they were saved. Writes are transactional, so
// a crash mid-write cannot corrupt a previously committed snapshot.
package bbolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fyeo/eventmatcher/internal/ports"
)

var (
	bucketSnapshots = []byte("snapshots")
	keyRecords      = []byte("records")
	keySavedAt      = []byte("saved_at")
)

// Store implements ports.SnapshotStore backed by bbolt.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// NewStore opens (or creates) a bbolt database at the given path.
func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the snapshot stored under key and stamps it with the current time.
func (s *Store) Save(_ context.Context, key string, snap *ports.IndexSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	savedAt := make([]byte, 8)
	binary.LittleEndian.PutUint64(savedAt, uint64(s.now().UnixNano()))

	return s.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		if err != nil {
			return err
		}
		b, err := root.CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		if err := b.Put(keyRecords, data); err != nil {
			return err
		}
		return b.Put(keySavedAt, savedAt)
	})
}

// Load returns the snapshot stored under key and when it was saved.
// Returns ports.ErrSnapshotNotFound if nothing is stored there.
func (s *Store) Load(_ context.Context, key string) (*ports.IndexSnapshot, time.Time, error) {
	var data []byte
	var savedAt time.Time

	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketSnapshots)
		if root == nil {
			return ports.ErrSnapshotNotFound
		}
		b := root.Bucket([]byte(key))
		if b == nil {
			return ports.ErrSnapshotNotFound
		}
		v := b.Get(keyRecords)
		if v == nil {
			return ports.ErrSnapshotNotFound
		}
		// bbolt slices are only valid within the transaction
		data = make([]byte, len(v))
		copy(data, v)
		if ts := b.Get(keySavedAt); len(ts) == 8 {
			savedAt = time.Unix(0, int64(binary.LittleEndian.Uint64(ts)))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ports.ErrSnapshotNotFound) {
			return nil, time.Time{}, fmt.Errorf("snapshot %s: %w", key, err)
		}
		return nil, time.Time{}, err
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return snap, savedAt, nil
}

// Delete removes the snapshot stored under key.
// Idempotent: deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketSnapshots)
		if root == nil {
			return nil
		}
		if err := root.DeleteBucket([]byte(key)); errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		} else {
			return err
		}
	})
}
