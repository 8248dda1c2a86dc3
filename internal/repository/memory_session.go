package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anime-shed/bookscan-go/internal/session"
)

// MemorySessionRepository keeps sessions in a map. Contents are lost on restart.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*session.ScanSession
}

// NewMemorySessionRepository creates an empty in-memory repository
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]*session.ScanSession)}
}

func (r *MemorySessionRepository) Get(_ context.Context, id string) (*session.ScanSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (r *MemorySessionRepository) Save(_ context.Context, s *session.ScanSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

func (r *MemorySessionRepository) List(_ context.Context) ([]*session.ScanSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*session.ScanSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	sortByCreation(out)
	return out, nil
}

func (r *MemorySessionRepository) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for id, s := range r.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(r.sessions, id)
			purged++
		}
	}
	return purged, nil
}

func (r *MemorySessionRepository) Close() error { return nil }

func sortByCreation(sessions []*session.ScanSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
