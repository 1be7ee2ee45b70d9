package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSnapshots = []byte("snapshots")

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// key is "controller/device"; controller ids never contain a slash after
// config validation.
func key(controllerID, deviceID string) []byte {
	return []byte(controllerID + "/" + deviceID)
}

func (s *BoltStore) SaveSnapshot(snap *Snapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSnapshots)
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		return b.Put(key(snap.ControllerID, snap.DeviceID), data)
	})
}

func (s *BoltStore) GetSnapshot(controllerID, deviceID string) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSnapshots)
		}
		data := b.Get(key(controllerID, deviceID))
		if data == nil {
			return fmt.Errorf("snapshot %s/%s: %w", controllerID, deviceID, ErrNotFound)
		}
		return json.Unmarshal(data, &snap)
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *BoltStore) DeleteSnapshot(controllerID, deviceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSnapshots)
		}
		return b.Delete(key(controllerID, deviceID))
	})
}

func (s *BoltStore) ListSnapshots(controllerID string) ([]*Snapshot, error) {
	var prefix []byte
	if controllerID != "" {
		prefix = []byte(controllerID + "/")
	}

	var snaps []*Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var snap Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("snapshot %s: %w", k, err)
			}
			snaps = append(snaps, &snap)
		}
		return nil
	})
	return snaps, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
