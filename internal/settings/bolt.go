package settings

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var settingsBucket = []byte("system_settings")

// BoltStore persists system settings in a bbolt bucket.
//
// The *bolt.DB handle is shared with other stores (the bot registry uses
// its own bucket in the same file); BoltStore never closes it.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates the settings bucket if absent and returns the store.
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating bucket: %v", ErrStoreUnavailable, err)
	}
	return &BoltStore{db: db}, nil
}

// Get returns the value for key.
func (s *BoltStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	var value string
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(settingsBucket).Get([]byte(key))
		if v != nil {
			value = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return value, found, nil
}

// Set writes the value for key.
func (s *BoltStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Snapshot returns all settings in one read transaction.
func (s *BoltStore) Snapshot(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

var _ Store = (*BoltStore)(nil)
