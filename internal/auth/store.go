package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// Mutable state lives entirely behind this interface; the service itself
// holds no shared mutable state.
type Store interface {
	Users(ctx context.Context) UserStore
	Sessions(ctx context.Context) SessionStore
}

// UserStore manages principals.
type UserStore interface {
	// Create inserts a new user and fills in ID and CreatedAt. Duplicate
	// username or email yields ErrConflict.
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id int64) (*User, error)
	// FindByIdentifier resolves a user by username or email.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	List(ctx context.Context, offset, limit int) ([]*User, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, u *User) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// WithSessionBackend returns a Store that keeps users in base but moves the
// session ledger to the given backend, e.g. Postgres users with Redis
// sessions.
func WithSessionBackend(base Store, sessions SessionStore) Store {
	return &compositeStore{base: base, sessions: sessions}
}

type compositeStore struct {
	base     Store
	sessions SessionStore
}

func (s *compositeStore) Users(ctx context.Context) UserStore       { return s.base.Users(ctx) }
func (s *compositeStore) Sessions(ctx context.Context) SessionStore { return s.sessions }

// SessionStore is the session ledger: the liveness record for every issued
// access token, keyed by jti.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	// GetActive returns a session only if it is marked active and its expiry
	// is strictly in the future. A lazily-expired record is treated as
	// absent (ErrNotFound) even when its active flag was never flipped.
	GetActive(ctx context.Context, tokenID string) (*Session, error)
	// Revoke idempotently deactivates the session and stamps the revocation
	// time. It reports whether a record was found and changed; a second call
	// on the same token id is a safe no-op returning false.
	Revoke(ctx context.Context, tokenID string, at time.Time) (bool, error)
}
