package session

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session is an administrator login. Tokens are opaque to everything but the Store.
type Session struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"` // zero means no expiry
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store is the session registry. Implementations must be safe for
// concurrent use.
type Store interface {
	// Create registers a new session. ErrTokenExists is returned when the
	// token is already active.
	Create(ctx context.Context, s Session) error
	// Get returns nil, nil when the token is unknown.
	Get(ctx context.Context, token string) (*Session, error)
	// Delete is a no-op for unknown tokens.
	Delete(ctx context.Context, token string) error
	// Sweep removes sessions expired at now and returns how many went.
	Sweep(ctx context.Context, now time.Time) (int, error)
	Close() error
}
