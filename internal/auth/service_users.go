package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"authkeep.org/internal/audit"
	"authkeep.org/internal/obs"
)

// CreateUserInput carries the fields accepted for user creation. Field-level
// password policy lives at the API boundary; this layer only refuses blanks.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	IsAdmin  bool
}

// UserUpdate carries the mutable user fields; nil means leave unchanged.
type UserUpdate struct {
	Email    *string
	IsActive *bool
}

// CreateUser creates a new principal. Only administrators may create users.
func (s *Service) CreateUser(ctx context.Context, actor *User, in CreateUserInput, client ClientContext) (*User, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, ErrForbidden
	}
	user, err := s.createUser(ctx, in)
	if err != nil {
		s.auditAuth(ctx, &actor.ID, actionCreateUser, audit.OutcomeFailure, err.Error(), client)
		return nil, err
	}
	s.auditAuth(ctx, &actor.ID, actionCreateUser, audit.OutcomeSuccess,
		fmt.Sprintf("created user %d", user.ID), client)
	return user, nil
}

// InitAdmin creates the first administrator account. It is only permitted
// while the user table is empty.
func (s *Service) InitAdmin(ctx context.Context, in CreateUserInput, client ClientContext) (*User, error) {
	count, err := s.store.Users(ctx).Count(ctx)
	if err != nil {
		obs.Error("user count failed", map[string]any{"err": err.Error()})
		return nil, ErrInternal
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: already initialized", ErrConflict)
	}
	in.IsAdmin = true
	user, err := s.createUser(ctx, in)
	if err != nil {
		return nil, err
	}
	s.auditAuth(ctx, &user.ID, actionInitAdmin, audit.OutcomeSuccess, "", client)
	return user, nil
}

func (s *Service) createUser(ctx context.Context, in CreateUserInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		obs.Error("password hashing failed", map[string]any{"err": err.Error()})
		return nil, ErrInternal
	}

	user := &User{
		Username:     username,
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      in.IsAdmin,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: username or email taken", ErrConflict)
		}
		obs.Error("user create failed", map[string]any{"err": err.Error()})
		return nil, ErrInternal
	}
	return user, nil
}

// GetUser returns a user readable by the actor: themselves, or anyone for an
// administrator.
func (s *Service) GetUser(ctx context.Context, actor *User, id int64) (*User, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	if !actor.IsAdmin && actor.ID != id {
		return nil, ErrForbidden
	}
	user, err := s.store.Users(ctx).Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		obs.Error("user lookup failed", map[string]any{"err": err.Error()})
		return nil, ErrInternal
	}
	return user, nil
}

// ListUsers returns a page of users; administrators only.
func (s *Service) ListUsers(ctx context.Context, actor *User, offset, limit int) ([]*User, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, ErrForbidden
	}
	users, err := s.store.Users(ctx).List(ctx, offset, limit)
	if err != nil {
		obs.Error("user list failed", map[string]any{"err": err.Error()})
		return nil, ErrInternal
	}
	return users, nil
}

// UpdateUser applies a partial update; administrators only.
func (s *Service) UpdateUser(ctx context.Context, actor *User, id int64, patch UserUpdate, client ClientContext) (*User, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, ErrForbidden
	}
	user, err := s.store.Users(ctx).Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		obs.Error("user lookup failed", map[string]any{"err": err.Error()})
		return nil, ErrInternal
	}
	if patch.Email != nil {
		user.Email = strings.TrimSpace(*patch.Email)
	}
	if patch.IsActive != nil {
		user.IsActive = *patch.IsActive
	}
	if err := s.store.Users(ctx).Update(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		obs.Error("user update failed", map[string]any{"err": err.Error()})
		return nil, ErrInternal
	}
	s.auditAuth(ctx, &actor.ID, actionUpdateUser, audit.OutcomeSuccess,
		fmt.Sprintf("updated user %d", id), client)
	return user, nil
}

// DeactivateUser flips the active flag off. Administrators only, and never
// on themselves.
func (s *Service) DeactivateUser(ctx context.Context, actor *User, id int64, client ClientContext) error {
	if actor == nil || !actor.IsAdmin {
		return ErrForbidden
	}
	if actor.ID == id {
		return fmt.Errorf("%w: cannot deactivate own account", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		obs.Error("user lookup failed", map[string]any{"err": err.Error()})
		return ErrInternal
	}
	user.IsActive = false
	if err := s.store.Users(ctx).Update(ctx, user); err != nil {
		obs.Error("user update failed", map[string]any{"err": err.Error()})
		return ErrInternal
	}
	s.auditAuth(ctx, &actor.ID, actionDeactivate, audit.OutcomeSuccess,
		fmt.Sprintf("deactivated user %d", id), client)
	return nil
}
