package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"authkeep.org/internal/ids"
)

// MemStore is an in-memory Store used in development mode (no DSN configured)
// and in tests. It mirrors the Postgres semantics, including lazy expiry.
type MemStore struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*User
	sessions map[string]*Session

	// Now is the ledger's clock; overridable in tests.
	Now func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		nextID:   1,
		users:    make(map[int64]*User),
		sessions: make(map[string]*Session),
		Now:      time.Now,
	}
}

func (s *MemStore) Users(ctx context.Context) UserStore       { return (*memUserStore)(s) }
func (s *MemStore) Sessions(ctx context.Context) SessionStore { return (*memSessionStore)(s) }

type memUserStore MemStore

func (s *memUserStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return ErrConflict
		}
		if u.Email != "" && existing.Email == u.Email {
			return ErrConflict
		}
	}
	u.ID = s.nextID
	s.nextID++
	now := s.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) Find(ctx context.Context, id int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == identifier || (u.Email != "" && strings.EqualFold(u.Email, identifier)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) List(ctx context.Context, offset, limit int) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []*User
	for id := int64(1); id < s.nextID; id++ {
		u, ok := s.users[id]
		if !ok {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		if len(out) == limit {
			break
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memUserStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

func (s *memUserStore) Update(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Email = u.Email
	existing.IsActive = u.IsActive
	existing.IsAdmin = u.IsAdmin
	existing.UpdatedAt = s.Now().UTC()
	return nil
}

func (s *memUserStore) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	stamp := at
	u.LastLoginAt = &stamp
	return nil
}

type memSessionStore MemStore

func (s *memSessionStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.TokenID]; exists {
		return ErrConflict
	}
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	cp := *sess
	s.sessions[sess.TokenID] = &cp
	return nil
}

func (s *memSessionStore) GetActive(ctx context.Context, tokenID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenID]
	if !ok || !sess.IsActive || !sess.ExpiresAt.After(s.Now()) {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memSessionStore) Revoke(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenID]
	if !ok || !sess.IsActive {
		return false, nil
	}
	stamp := at
	sess.IsActive = false
	sess.RevokedAt = &stamp
	return true, nil
}
