package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MegaGrindStone/polaris/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the transcript Store using a BoltDB backend. Messages are kept in insertion order under a
// sequence key, with a secondary bucket mapping message IDs to those keys for in-place updates.
type BoltDB struct {
	db *bolt.DB
}

var (
	messagesBucket   = []byte("messages")
	messageIDsBucket = []byte("message_ids")
)

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with required buckets and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(messagesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(messageIDsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create buckets: %w", err)
	}

	return BoltDB{db: db}, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func sequenceKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}

// Messages retrieves all stored messages in insertion order.
func (b BoltDB) Messages(context.Context) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).ForEach(func(_, v []byte) error {
			var message models.Message
			if err := json.Unmarshal(v, &message); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, message)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// AddMessage stores a new message after every stored one.
func (b BoltDB) AddMessage(_ context.Context, message models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		msgs := tx.Bucket(messagesBucket)
		ids := tx.Bucket(messageIDsBucket)

		if ids.Get([]byte(message.ID)) != nil {
			return fmt.Errorf("message %s already exists", message.ID)
		}

		seq, err := msgs.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		key := sequenceKey(seq)

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		if err := msgs.Put(key, v); err != nil {
			return err
		}
		return ids.Put([]byte(message.ID), key)
	})
}

// UpdateMessage modifies an existing message. If the message doesn't exist, the operation is silently ignored.
func (b BoltDB) UpdateMessage(_ context.Context, message models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		key := tx.Bucket(messageIDsBucket).Get([]byte(message.ID))
		if key == nil {
			return nil
		}

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return tx.Bucket(messagesBucket).Put(key, v)
	})
}
