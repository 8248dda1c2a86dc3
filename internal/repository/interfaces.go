package repository

import (
	"context"
	"time"

	"github.com/anime-shed/bookscan-go/internal/session"
)

// SessionRepository stores scan sessions between steps. Implementations hand
// out copies, so callers may mutate what they get back.
type SessionRepository interface {
	// Get returns ErrSessionNotFound for unknown ids
	Get(ctx context.Context, id string) (*session.ScanSession, error)

	// Save inserts or replaces a session
	Save(ctx context.Context, s *session.ScanSession) error

	// Delete is a no-op for unknown ids
	Delete(ctx context.Context, id string) error

	// List returns all sessions ordered by creation time
	List(ctx context.Context) ([]*session.ScanSession, error)

	// PurgeBefore removes sessions last updated before cutoff and reports how many
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// ImageRepository resolves an image reference to raw bytes
type ImageRepository interface {
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}
