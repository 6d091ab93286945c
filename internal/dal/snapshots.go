package dal

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const snapshotsBucket = "snapshots"
const snapshotCurrentKey = "current"

// Snapshot is the most recently fetched schedule text.
type Snapshot struct {
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

type BoltDB struct {
	db *bbolt.DB
}

func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotsBucket))
		return err
	}); err != nil {
		return nil, fmt.Errorf("create snapshots bucket: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (s *BoltDB) GetSnapshot() (Snapshot, bool, error) {
	var res Snapshot
	found := false

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(snapshotsBucket)).Get([]byte(snapshotCurrentKey))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &res)
	})

	return res, found, err
}

func (s *BoltDB) PutSnapshot(snap Snapshot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		return tx.Bucket([]byte(snapshotsBucket)).Put([]byte(snapshotCurrentKey), data)
	})
}

func (s *BoltDB) Close() error {
	return s.db.Close()
}
