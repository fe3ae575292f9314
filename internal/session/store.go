// Package session holds live accumulation sessions: one caller-owned
// accumulated record per session, replaced wholesale after each merge.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/rxlens/rxlens-api/internal/model"
)

var ErrNotFound = errors.New("session not found")

// Store keeps active sessions in memory with a sliding TTL. The
// durable copy lives in the record repository; this cache only avoids
// a database round trip per image while a session is hot.
type Store struct {
	sessions *cache.Cache
}

func NewStore(ttl, cleanupInterval time.Duration) *Store {
	return &Store{
		sessions: cache.New(ttl, cleanupInterval),
	}
}

// New creates a session with the canonical empty record.
func (s *Store) New() *model.Session {
	now := time.Now().UTC()
	sess := &model.Session{
		ID:        uuid.New(),
		Record:    model.NewPrescriptionRecord(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions.SetDefault(sess.ID.String(), sess)
	return sess
}

func (s *Store) Get(id uuid.UUID) (*model.Session, error) {
	v, ok := s.sessions.Get(id.String())
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*model.Session), nil
}

// Put replaces the stored session and refreshes its TTL. Used both
// after a merge and to rehydrate a session loaded from storage.
func (s *Store) Put(sess *model.Session) {
	sess.UpdatedAt = time.Now().UTC()
	s.sessions.SetDefault(sess.ID.String(), sess)
}

// Reset swaps the session's record back to the all-sentinel default.
func (s *Store) Reset(id uuid.UUID) (*model.Session, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	sess.Record = model.NewPrescriptionRecord()
	s.Put(sess)
	return sess, nil
}

func (s *Store) Delete(id uuid.UUID) {
	s.sessions.Delete(id.String())
}
