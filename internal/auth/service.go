package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"authkeep.org/internal/audit"
	"authkeep.org/internal/ids"
	"authkeep.org/internal/obs"
)

// Audit action names written by the orchestrator.
const (
	actionLogin        = "login"
	actionLogout       = "logout"
	actionTokenRefresh = "token_refresh"
	actionCreateUser   = "create_user"
	actionInitAdmin    = "create_initial_admin"
	actionUpdateUser   = "update_user"
	actionDeactivate   = "deactivate_user"
)

// Service composes the credential verifier, token codec, session ledger and
// audit recorder into the login/verify/logout/refresh workflows. It owns all
// invariant enforcement and failure translation; every audit write is an
// explicit statement at a decision point, never an implicit wrapper.
type Service struct {
	store    Store
	codec    *Codec
	recorder *audit.Recorder
	now      func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the orchestrator.
func NewService(store Store, codec *Codec, recorder *audit.Recorder, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		codec:      codec,
		recorder:   recorder,
		now:        time.Now,
		accessTTL:  DefaultAccessTokenTTL,
		refreshTTL: DefaultRefreshTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates a username-or-email identifier against the stored
// password hash and, on success, issues an access/refresh token pair backed
// by a new session record. Unknown user and wrong password produce the same
// external error.
func (s *Service) Login(ctx context.Context, identifier, password string, client ClientContext) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		s.auditAuth(ctx, nil, actionLogin, audit.OutcomeFailure, "missing credentials", client)
		obs.ObserveLogin(audit.OutcomeFailure)
		return nil, ErrUnauthenticated
	}

	user, err := s.store.Users(ctx).FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.auditAuth(ctx, nil, actionLogin, audit.OutcomeFailure, "user not found", client)
			obs.ObserveLogin(audit.OutcomeFailure)
			return nil, ErrUnauthenticated
		}
		obs.Error("login user lookup failed", map[string]any{"err": err.Error()})
		s.auditAuth(ctx, nil, actionLogin, audit.OutcomeError, "user lookup failed", client)
		obs.ObserveLogin(audit.OutcomeError)
		return nil, ErrInternal
	}

	if !user.IsActive {
		s.auditAuth(ctx, &user.ID, actionLogin, audit.OutcomeFailure, "account inactive", client)
		obs.ObserveLogin(audit.OutcomeFailure)
		return nil, ErrAccountInactive
	}

	if !CheckPassword(user.PasswordHash, password) {
		s.auditAuth(ctx, &user.ID, actionLogin, audit.OutcomeFailure, "invalid password", client)
		obs.ObserveLogin(audit.OutcomeFailure)
		return nil, ErrUnauthenticated
	}

	result, err := s.issuePair(ctx, user, client)
	if err != nil {
		s.auditAuth(ctx, &user.ID, actionLogin, audit.OutcomeError, "token issuance failed", client)
		obs.ObserveLogin(audit.OutcomeError)
		return nil, err
	}

	// Last-login stamp is best-effort; losing it never fails a login.
	if err := s.store.Users(ctx).UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		obs.Warn("last login update failed", map[string]any{"user_id": user.ID, "err": err.Error()})
	}

	s.auditAuth(ctx, &user.ID, actionLogin, audit.OutcomeSuccess, "", client)
	obs.ObserveLogin(audit.OutcomeSuccess)
	return result, nil
}

// Verify establishes that a token is authentic (signature, structure, expiry)
// and live (its session has not been revoked). It does not write audit; call
// sites decide. The returned claims carry subject id, username and jti.
func (s *Service) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.codec.Parse(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if claims.TokenType != TokenTypeAccess {
		obs.Warn("non-access token presented for verification", nil)
		return nil, ErrUnauthenticated
	}

	if _, err := s.store.Sessions(ctx).GetActive(ctx, claims.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Authentic but not live: the session was revoked or lapsed.
			return nil, ErrUnauthenticated
		}
		obs.Error("session lookup failed", map[string]any{"err": err.Error()})
		return nil, ErrInternal
	}
	return claims, nil
}

// Authenticate resolves a verified token to its backing user and claims.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.Verify(ctx, token)
	if err != nil {
		return Principal{}, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		obs.Error("principal lookup failed", map[string]any{"err": err.Error()})
		return Principal{}, ErrInternal
	}
	if !user.IsActive {
		return Principal{}, ErrAccountInactive
	}
	return Principal{User: user, Claims: claims}, nil
}

// CurrentPrincipal resolves a verified token to its backing user.
func (s *Service) CurrentPrincipal(ctx context.Context, token string) (*User, error) {
	principal, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return principal.User, nil
}

// Logout revokes the session behind a valid, live access token. A session
// that disappears between verification and revocation makes the request
// malformed rather than a security failure, so it reports as invalid input.
func (s *Service) Logout(ctx context.Context, token string, client ClientContext) error {
	claims, err := s.Verify(ctx, token)
	if err != nil {
		return err
	}
	userID, _ := claims.UserID()

	found, err := s.store.Sessions(ctx).Revoke(ctx, claims.ID, s.now().UTC())
	if err != nil {
		obs.Error("session revoke failed", map[string]any{"err": err.Error()})
		return ErrInternal
	}
	if !found {
		return fmt.Errorf("%w: session not found", ErrInvalidInput)
	}

	obs.ObserveRevocation()
	s.auditAuth(ctx, &userID, actionLogout, audit.OutcomeSuccess, "", client)
	return nil
}

// Refresh exchanges a refresh token for a brand-new access/refresh pair and a
// brand-new session record. Refresh tokens are validated by signature and
// kind only; they are not tracked in the ledger, and the presented token
// stays valid until its natural expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientContext) (*LoginResult, error) {
	claims, err := s.codec.Parse(refreshToken)
	if err != nil {
		obs.ObserveRefresh(audit.OutcomeFailure)
		return nil, ErrUnauthenticated
	}
	if claims.TokenType != TokenTypeRefresh {
		obs.Warn("non-refresh token presented for refresh", nil)
		obs.ObserveRefresh(audit.OutcomeFailure)
		return nil, ErrUnauthenticated
	}

	userID, err := claims.UserID()
	if err != nil {
		obs.ObserveRefresh(audit.OutcomeFailure)
		return nil, ErrUnauthenticated
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObserveRefresh(audit.OutcomeFailure)
			return nil, ErrUnauthenticated
		}
		obs.Error("refresh user lookup failed", map[string]any{"err": err.Error()})
		obs.ObserveRefresh(audit.OutcomeError)
		return nil, ErrInternal
	}
	if !user.IsActive {
		obs.ObserveRefresh(audit.OutcomeFailure)
		return nil, ErrUnauthenticated
	}

	result, err := s.issuePair(ctx, user, client)
	if err != nil {
		s.auditAuth(ctx, &user.ID, actionTokenRefresh, audit.OutcomeError, "token issuance failed", client)
		obs.ObserveRefresh(audit.OutcomeError)
		return nil, err
	}

	s.auditAuth(ctx, &user.ID, actionTokenRefresh, audit.OutcomeSuccess, "", client)
	obs.ObserveRefresh(audit.OutcomeSuccess)
	return result, nil
}

// issuePair mints an access and refresh token sharing the same claim shape
// and creates the session record keyed by the access token's jti. A storage
// failure here is fatal to the flow: the minted tokens are discarded.
func (s *Service) issuePair(ctx context.Context, user *User, client ClientContext) (*LoginResult, error) {
	accessToken, jti, err := s.codec.Issue(user.ID, user.Username, TokenTypeAccess, s.accessTTL)
	if err != nil {
		obs.Error("access token signing failed", map[string]any{"err": err.Error()})
		return nil, ErrInternal
	}
	refreshToken, _, err := s.codec.Issue(user.ID, user.Username, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		obs.Error("refresh token signing failed", map[string]any{"err": err.Error()})
		return nil, ErrInternal
	}

	now := s.now().UTC()
	session := &Session{
		ID:        ids.New(),
		UserID:    user.ID,
		TokenID:   jti,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.accessTTL),
		IsActive:  true,
	}
	if err := s.store.Sessions(ctx).Create(ctx, session); err != nil {
		obs.Error("session create failed", map[string]any{"user_id": user.ID, "err": err.Error()})
		return nil, ErrInternal
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL / time.Second),
		User:         user,
	}, nil
}

func (s *Service) auditAuth(ctx context.Context, userID *int64, action, result, details string, client ClientContext) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(ctx, audit.Event{
		UserID:    userID,
		Action:    action,
		Result:    result,
		Details:   details,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
}
