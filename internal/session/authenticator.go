package session

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials is returned by Issue for a wrong secret.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned by Validate for a missing, unknown, expired
	// or revoked token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrServerMisconfigured is returned by Issue when no administrator
	// secret is configured at all.
	ErrServerMisconfigured = errors.New("admin password not set on server")

	ErrTokenExists = errors.New("session: token already exists")
	ErrEmptyToken  = errors.New("session: empty token")
)

// maxIssueAttempts bounds retries on the astronomically unlikely token collision.
const maxIssueAttempts = 3

// Authenticator issues, validates and revokes administrator sessions.
type Authenticator struct {
	secret string
	store  Store
	ttl    time.Duration
	now    func() time.Time
}

// Option customises an Authenticator.
type Option func(*Authenticator)

// WithTTL sets how long an issued session stays valid. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(a *Authenticator) { a.ttl = ttl }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

func NewAuthenticator(secret string, store Store, opts ...Option) *Authenticator {
	a := &Authenticator{
		secret: secret,
		store:  store,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Issue checks candidate against the configured secret and registers a new
// session on success. A failed check has no side effect.
func (a *Authenticator) Issue(ctx context.Context, candidate string) (*Session, error) {
	if a.secret == "" {
		return nil, ErrServerMisconfigured
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(a.secret)) != 1 {
		return nil, ErrInvalidCredentials
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		token, err := NewToken(TokenBytes)
		if err != nil {
			return nil, err
		}
		now := a.now()
		s := Session{Token: token, CreatedAt: now}
		if a.ttl > 0 {
			s.ExpiresAt = now.Add(a.ttl)
		}
		err = a.store.Create(ctx, s)
		if errors.Is(err, ErrTokenExists) {
			zap.L().Warn("session token collision, regenerating", zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "register session")
		}
		return &s, nil
	}
	return nil, errors.New("session: could not allocate a unique token")
}

// Validate succeeds iff token names a live session. It never refreshes or
// otherwise mutates the session.
func (a *Authenticator) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	s, err := a.store.Get(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "lookup session")
	}
	if s == nil || s.Expired(a.now()) {
		return nil, ErrUnauthorized
	}
	return s, nil
}

// Revoke removes token from the registry. Unknown tokens are not an error.
func (a *Authenticator) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return errors.Wrap(a.store.Delete(ctx, token), "revoke session")
}

// Sweep drops expired sessions from the registry.
func (a *Authenticator) Sweep(ctx context.Context) (int, error) {
	return a.store.Sweep(ctx, a.now())
}

// Configured reports whether an administrator secret is present.
func (a *Authenticator) Configured() bool {
	return a.secret != ""
}
