package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const documentsBucket = "documents"

// BoltStore keeps every room document in one bbolt database.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache database path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(documentsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents bucket: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) Save(room, content string) error {
	if err := checkRoom(room); err != nil {
		return err
	}

	payload, err := json.Marshal(Entry{Room: room, Content: content, UpdatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(documentsBucket)).Put([]byte(room), payload)
	})
}

func (s *BoltStore) Load(room string) (*Entry, error) {
	if err := checkRoom(room); err != nil {
		return nil, err
	}

	var entry Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket([]byte(documentsBucket)).Get([]byte(room))
		if payload == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(payload, &entry); err != nil {
			return fmt.Errorf("unmarshal cache entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *BoltStore) Delete(room string) error {
	if err := checkRoom(room); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(documentsBucket))
		if bucket.Get([]byte(room)) == nil {
			return ErrNotFound
		}
		return bucket.Delete([]byte(room))
	})
}

func (s *BoltStore) ListAll() ([]string, error) {
	var rooms []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(documentsBucket)).ForEach(func(k, _ []byte) error {
			rooms = append(rooms, string(k))
			return nil
		})
	})
	return rooms, err
}

func (s *BoltStore) Exists(room string) bool {
	if checkRoom(room) != nil {
		return false
	}
	_, err := s.Load(room)
	return err == nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
