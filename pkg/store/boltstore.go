package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/streamsched/pkg/types"
)

var bucketSchedules = []byte("schedules")

// BoltScheduleStore implements ScheduleStore using a single BoltDB
// bucket, keyed by the schedule's canonical "ns:app:type:prog:sched"
// string so that iteration order matches ScheduleId's natural order.
type BoltScheduleStore struct {
	db *bolt.DB
}

// NewBoltScheduleStore opens (creating if needed) a BoltDB file under
// dataDir and ensures the schedules bucket exists.
func NewBoltScheduleStore(dataDir string) (*BoltScheduleStore, error) {
	dbPath := filepath.Join(dataDir, "streamsched.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open schedule database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSchedules)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schedules bucket: %w", err)
	}

	return &BoltScheduleStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltScheduleStore) Close() error {
	return s.db.Close()
}

// Upsert writes snapshot under its ScheduleId's canonical string key.
func (s *BoltScheduleStore) Upsert(snapshot types.TaskSnapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		data, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		return b.Put([]byte(snapshot.ScheduleId.String()), data)
	})
}

// Delete removes the snapshot for id. Deleting an unknown id is a no-op.
func (s *BoltScheduleStore) Delete(id types.ScheduleId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		return b.Delete([]byte(id.String()))
	})
}

// LoadAll returns every persisted snapshot in ScheduleId order.
func (s *BoltScheduleStore) LoadAll() ([]types.TaskSnapshot, error) {
	var snapshots []types.TaskSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		return b.ForEach(func(k, v []byte) error {
			var snap types.TaskSnapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("unmarshal snapshot %s: %w", k, err)
			}
			snapshots = append(snapshots, snap)
			return nil
		})
	})
	return snapshots, err
}
