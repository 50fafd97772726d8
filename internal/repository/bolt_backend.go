package repository

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"

	"movie-tracker/internal/models"
)

var librariesBucket = []byte("libraries")

// BoltBackend keeps one record per user in a BoltDB bucket, keyed by the
// big-endian user id. Save recreates the bucket in a single transaction.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBoltBackend opens (or creates) the BoltDB file at path.
func OpenBoltBackend(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &BoltBackend{db: db}, nil
}

// Close releases the database file lock.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// Load reads every record of the bucket.
func (b *BoltBackend) Load(_ context.Context) ([]models.UserLibrary, error) {
	var libs []models.UserLibrary
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(librariesBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return fmt.Errorf("%w: bad key %x", models.ErrCorruptStore, k)
			}
			var lib models.UserLibrary
			if err := json.Unmarshal(v, &lib); err != nil {
				return fmt.Errorf("%w: user %d: %v", models.ErrCorruptStore, binary.BigEndian.Uint64(k), err)
			}
			lib.UserID = int64(binary.BigEndian.Uint64(k))
			libs = append(libs, lib)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return libs, nil
}

// Save replaces the bucket contents with libs.
func (b *BoltBackend) Save(_ context.Context, libs []models.UserLibrary) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(librariesBucket) != nil {
			if err := tx.DeleteBucket(librariesBucket); err != nil {
				return fmt.Errorf("drop bucket: %w", err)
			}
		}
		bucket, err := tx.CreateBucket(librariesBucket)
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		key := make([]byte, 8)
		for _, lib := range libs {
			enc, err := json.Marshal(lib)
			if err != nil {
				return fmt.Errorf("encode user %d: %w", lib.UserID, err)
			}
			binary.BigEndian.PutUint64(key, uint64(lib.UserID))
			if err := bucket.Put(key, enc); err != nil {
				return fmt.Errorf("put user %d: %w", lib.UserID, err)
			}
		}
		return nil
	})
}
