package history

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/check-verifier/internal/check"
)

const bucketName = "history"

// Bolt implements the Repository interface using BoltDB
type Bolt struct {
	db *bbolt.DB
}

// NewBolt opens (or creates) the BoltDB file at path
func NewBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Save prepends entry inside a single write transaction
func (b *Bolt) Save(ctx context.Context, entry check.StoredCheck) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data, err := prepend(bucket.Get([]byte(Key)), entry)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(Key), data)
	})
}

// List returns the entries newest first
func (b *Bolt) List(ctx context.Context) ([]check.StoredCheck, error) {
	var entries []check.StoredCheck
	err := b.db.View(func(tx *bbolt.Tx) error {
		entries = decode(tx.Bucket([]byte(bucketName)).Get([]byte(Key)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return entries, nil
}

// Get returns the entry with the given ID
func (b *Bolt) Get(ctx context.Context, id string) (*check.StoredCheck, error) {
	return get(ctx, b, id)
}

// Clear removes the history blob
func (b *Bolt) Clear(ctx context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(Key))
	})
}

// Close closes the database connection
func (b *Bolt) Close() error {
	return b.db.Close()
}
