package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/anime-shed/bookscan-go/internal/session"
)

const sessionBucket = "sessions"

// BoltSessionRepository persists sessions as JSON values in a bbolt bucket
type BoltSessionRepository struct {
	db *bbolt.DB
}

// NewBoltSessionRepository opens (or creates) the database at path
func NewBoltSessionRepository(path string) (*BoltSessionRepository, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltSessionRepository{db: db}, nil
}

func (b *BoltSessionRepository) Get(_ context.Context, id string) (*session.ScanSession, error) {
	var s *session.ScanSession
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(sessionBucket)).Get([]byte(id))
		if data == nil {
			return ErrSessionNotFound
		}
		return json.Unmarshal(data, &s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *BoltSessionRepository) Save(_ context.Context, s *session.ScanSession) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshaling session: %w", err)
		}
		return tx.Bucket([]byte(sessionBucket)).Put([]byte(s.ID), data)
	})
}

func (b *BoltSessionRepository) Delete(_ context.Context, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Delete([]byte(id))
	})
}

func (b *BoltSessionRepository) List(_ context.Context) ([]*session.ScanSession, error) {
	sessions := make([]*session.ScanSession, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).ForEach(func(k, v []byte) error {
			var s session.ScanSession
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("unmarshaling session %s: %w", k, err)
			}
			sessions = append(sessions, &s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortByCreation(sessions)
	return sessions, nil
}

func (b *BoltSessionRepository) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	purged := 0
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var s session.ScanSession
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("unmarshaling session %s: %w", k, err)
			}
			if s.UpdatedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		// Deleting inside ForEach invalidates the cursor
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		purged = len(stale)
		return nil
	})
	return purged, err
}

func (b *BoltSessionRepository) Close() error {
	return b.db.Close()
}
