package tenant

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var botsBucket = []byte("bots")

// BoltStore persists bot records in a bbolt bucket, sharing the database
// file with the settings store.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates the bots bucket if absent and returns the store.
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(botsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating bots bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Get returns the bot with the given ID.
func (s *BoltStore) Get(ctx context.Context, id string) (*Bot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var bot *Bot
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(botsBucket).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		bot = &Bot{}
		return json.Unmarshal(raw, bot)
	})
	if err != nil {
		return nil, err
	}
	return bot, nil
}

// Put stores the bot, keyed by its ID.
func (s *BoltStore) Put(ctx context.Context, bot *Bot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bot.ID == "" {
		return ErrInvalidID
	}

	raw, err := json.Marshal(bot)
	if err != nil {
		return fmt.Errorf("encoding bot %s: %w", bot.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(botsBucket).Put([]byte(bot.ID), raw)
	})
}

// Delete removes the bot record. Deleting a missing bot is not an error.
func (s *BoltStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(botsBucket).Delete([]byte(id))
	})
}

// List returns all bot records.
func (s *BoltStore) List(ctx context.Context) ([]*Bot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var bots []*Bot
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(botsBucket).ForEach(func(_, v []byte) error {
			var bot Bot
			if err := json.Unmarshal(v, &bot); err != nil {
				return err
			}
			bots = append(bots, &bot)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return bots, nil
}

var _ Store = (*BoltStore)(nil)
