package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/newshub/stevedore/pkg/types"
)

var (
	// Bucket names
	bucketAttempts = []byte("attempts")
	bucketBackups  = []byte("backups")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) the bbolt database at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketAttempts, bucketBackups} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// RecordAttempt appends a completed deployment attempt. Keys are
// timestamp-prefixed so bucket order is chronological.
func (s *BoltStore) RecordAttempt(attempt *types.DeploymentAttempt) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttempts)
		data, err := json.Marshal(attempt)
		if err != nil {
			return err
		}
		return b.Put(timeKey(attempt.StartedAt, attempt.ID), data)
	})
}

// ListAttempts returns attempts newest first
func (s *BoltStore) ListAttempts() ([]*types.DeploymentAttempt, error) {
	var attempts []*types.DeploymentAttempt
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttempts)
		return b.ForEach(func(k, v []byte) error {
			var attempt types.DeploymentAttempt
			if err := json.Unmarshal(v, &attempt); err != nil {
				return err
			}
			attempts = append(attempts, &attempt)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].StartedAt.After(attempts[j].StartedAt)
	})
	return attempts, nil
}

// RecordBackup appends a backup record to the index
func (s *BoltStore) RecordBackup(record *types.BackupRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBackups)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(record.ID), data)
	})
}

// ListBackups returns backup records newest first
func (s *BoltStore) ListBackups() ([]*types.BackupRecord, error) {
	var records []*types.BackupRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBackups)
		return b.ForEach(func(k, v []byte) error {
			var record types.BackupRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// DeleteBackup removes a backup record from the index
func (s *BoltStore) DeleteBackup(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBackups).Delete([]byte(id))
	})
}

func timeKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format(time.RFC3339Nano) + "/" + id)
}
