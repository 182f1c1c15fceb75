package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"authkeep.org/internal/audit"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc      *Service
	store    *MemStore
	auditLog *audit.MemStore
	codec    *Codec
	clock    *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newTestClock()
	store := NewMemStore()
	store.Now = clock.Now
	auditLog := audit.NewMemStore()
	codec, err := NewCodec("unit-test-secret", WithCodecClock(clock.Now))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	recorder := audit.NewRecorder(auditLog, audit.WithClock(clock.Now))
	svc := NewService(store, codec, recorder, WithClock(clock.Now))
	return &fixture{svc: svc, store: store, auditLog: auditLog, codec: codec, clock: clock}
}

func (f *fixture) seedUser(t *testing.T, username, password string, active, admin bool) *User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := &User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		IsActive:     active,
		IsAdmin:      admin,
	}
	if err := f.store.Users(context.Background()).Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (f *fixture) auditRecords(t *testing.T, action string) []*audit.Record {
	t.Helper()
	recs, err := f.auditLog.List(context.Background(), audit.Filter{Action: action})
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	return recs
}

var testClient = ClientContext{IPAddress: "192.0.2.10", UserAgent: "go-test"}

func TestLoginLifecycle(t *testing.T) {
	f := newFixture(t)
	alice := f.seedUser(t, "alice", "Abc12345!", true, false)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "alice", "Abc12345!", testClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if res.TokenType != "bearer" || res.ExpiresIn != int64(DefaultAccessTokenTTL/time.Second) {
		t.Fatalf("unexpected result metadata: %+v", res)
	}

	// Session record was created for the access token's jti, active.
	claims, err := f.codec.Parse(res.AccessToken)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sess, err := f.store.Sessions(ctx).GetActive(ctx, claims.ID)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if !sess.IsActive || sess.UserID != alice.ID || sess.IPAddress != testClient.IPAddress {
		t.Fatalf("unexpected session: %+v", sess)
	}

	// Last login stamped.
	reloaded, err := f.store.Users(ctx).Find(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if reloaded.LastLoginAt == nil {
		t.Fatal("last login not stamped")
	}

	// Verify resolves the subject.
	got, err := f.svc.Verify(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id, _ := got.UserID(); id != alice.ID {
		t.Fatalf("unexpected subject: %d", id)
	}

	// Logout revokes; the token stays authentic but is no longer live.
	if err := f.svc.Logout(ctx, res.AccessToken, testClient); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.codec.Parse(res.AccessToken); err != nil {
		t.Fatalf("signature check must still succeed after revocation: %v", err)
	}
	if _, err := f.svc.Verify(ctx, res.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after logout, got %v", err)
	}

	// Audit trail: login success and logout success.
	if recs := f.auditRecords(t, "login"); len(recs) != 1 || recs[0].Result != audit.OutcomeSuccess {
		t.Fatalf("unexpected login audit: %+v", recs)
	}
	if recs := f.auditRecords(t, "logout"); len(recs) != 1 || recs[0].Result != audit.OutcomeSuccess {
		t.Fatalf("unexpected logout audit: %+v", recs)
	}
}

// Unknown user and wrong password must be indistinguishable to the caller.
func TestLoginNoEnumeration(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Abc12345!", true, false)
	ctx := context.Background()

	_, errUnknown := f.svc.Login(ctx, "mallory", "Abc12345!", testClient)
	_, errWrongPw := f.svc.Login(ctx, "alice", "wrong-password", testClient)

	if !errors.Is(errUnknown, ErrUnauthenticated) || !errors.Is(errWrongPw, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v / %v", errUnknown, errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Fatalf("error payloads differ: %q vs %q", errUnknown, errWrongPw)
	}

	// Both attempts audited as failures; the unknown user one has no actor.
	recs := f.auditRecords(t, "login")
	if len(recs) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(recs))
	}
	for _, rec := range recs {
		if rec.Result != audit.OutcomeFailure {
			t.Fatalf("expected failure outcome: %+v", rec)
		}
	}
}

// Inactive accounts keep their distinguishable login message.
func TestLoginInactiveAccount(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "carol", "Abc12345!", false, false)

	_, err := f.svc.Login(context.Background(), "carol", "Abc12345!", testClient)
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatal("inactive must still classify as unauthenticated")
	}
}

func TestLoginByEmail(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Abc12345!", true, false)

	if _, err := f.svc.Login(context.Background(), "alice@example.com", "Abc12345!", testClient); err != nil {
		t.Fatalf("Login by email: %v", err)
	}
}

func TestVerifyRejectsRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Abc12345!", true, false)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "alice", "Abc12345!", testClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := f.svc.Verify(ctx, res.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("refresh token must not verify as access, got %v", err)
	}
}

func TestVerifyExpiredSession(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Abc12345!", true, false)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "alice", "Abc12345!", testClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	f.clock.Advance(DefaultAccessTokenTTL + time.Second)
	if _, err := f.svc.Verify(ctx, res.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after expiry, got %v", err)
	}
}

func TestLogoutRequiresLiveSession(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Abc12345!", true, false)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "alice", "Abc12345!", testClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.svc.Logout(ctx, res.AccessToken, testClient); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	// A second logout fails verification: the session is no longer live.
	if err := f.svc.Logout(ctx, res.AccessToken, testClient); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

type revokeMissSessions struct{ SessionStore }

func (revokeMissSessions) Revoke(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

// A session that vanishes between verification and revocation makes the
// logout request invalid input, not a missing resource.
func TestLogoutRevokeNotFoundIsInvalidInput(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Abc12345!", true, false)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "alice", "Abc12345!", testClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	vanishing := WithSessionBackend(f.store, revokeMissSessions{f.store.Sessions(ctx)})
	svc := NewService(vanishing, f.codec, audit.NewRecorder(f.auditLog), WithClock(f.clock.Now))

	err = svc.Logout(ctx, res.AccessToken, testClient)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("revoke miss must not classify as not-found")
	}
}

func TestRevokeIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	sess := &Session{
		UserID:    1,
		TokenID:   "jti-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
		IsActive:  true,
	}
	if err := f.store.Sessions(ctx).Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := f.store.Sessions(ctx).Revoke(ctx, "jti-1", now)
	if err != nil || !first {
		t.Fatalf("first revoke: %v %v", first, err)
	}
	second, err := f.store.Sessions(ctx).Revoke(ctx, "jti-1", now)
	if err != nil || second {
		t.Fatalf("second revoke must be a no-op: %v %v", second, err)
	}
	if _, err := f.store.Sessions(ctx).GetActive(ctx, "jti-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoked session must be absent, got %v", err)
	}
}

// A stale active flag does not resurrect an expired session.
func TestGetActiveLazyExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	sess := &Session{
		UserID:    1,
		TokenID:   "jti-stale",
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
		IsActive:  true,
	}
	if err := f.store.Sessions(ctx).Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.store.Sessions(ctx).GetActive(ctx, "jti-stale"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for lazily-expired session, got %v", err)
	}
}

func TestRefreshIssuesIndependentSession(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Abc12345!", true, false)
	ctx := context.Background()

	login, err := f.svc.Login(ctx, "alice", "Abc12345!", testClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	loginClaims, _ := f.codec.Parse(login.AccessToken)

	refreshed, err := f.svc.Refresh(ctx, login.RefreshToken, testClient)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	refreshedClaims, err := f.codec.Parse(refreshed.AccessToken)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if refreshedClaims.ID == loginClaims.ID {
		t.Fatal("refresh must mint a fresh jti")
	}

	// The original session is untouched by the refresh.
	if _, err := f.store.Sessions(ctx).GetActive(ctx, loginClaims.ID); err != nil {
		t.Fatalf("original session must remain active: %v", err)
	}
	if _, err := f.store.Sessions(ctx).GetActive(ctx, refreshedClaims.ID); err != nil {
		t.Fatalf("refreshed session must be active: %v", err)
	}

	// The presented refresh token remains valid until natural expiry.
	if _, err := f.svc.Refresh(ctx, login.RefreshToken, testClient); err != nil {
		t.Fatalf("refresh token must stay exchangeable: %v", err)
	}

	if recs := f.auditRecords(t, "token_refresh"); len(recs) != 2 {
		t.Fatalf("expected 2 refresh audit records, got %d", len(recs))
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Abc12345!", true, false)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "alice", "Abc12345!", testClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, res.AccessToken, testClient); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
}

func TestRefreshDeactivatedUser(t *testing.T) {
	f := newFixture(t)
	alice := f.seedUser(t, "alice", "Abc12345!", true, false)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "alice", "Abc12345!", testClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	alice.IsActive = false
	if err := f.store.Users(ctx).Update(ctx, alice); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, res.RefreshToken, testClient); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for deactivated user, got %v", err)
	}
}

func TestCurrentPrincipal(t *testing.T) {
	f := newFixture(t)
	alice := f.seedUser(t, "alice", "Abc12345!", true, false)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "alice", "Abc12345!", testClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	user, err := f.svc.CurrentPrincipal(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("CurrentPrincipal: %v", err)
	}
	if user.ID != alice.ID || user.Username != "alice" {
		t.Fatalf("unexpected principal: %+v", user)
	}

	// Deactivation invalidates an otherwise live token at resolution time.
	alice.IsActive = false
	if err := f.store.Users(ctx).Update(ctx, alice); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := f.svc.CurrentPrincipal(ctx, res.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

type failingSessions struct{ SessionStore }

func (failingSessions) Create(context.Context, *Session) error {
	return errors.New("write failed")
}

// A session write failure is fatal to login: the minted token is discarded.
func TestLoginFailsWhenSessionWriteFails(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Abc12345!", true, false)

	broken := WithSessionBackend(f.store, failingSessions{})
	svc := NewService(broken, f.codec, audit.NewRecorder(f.auditLog), WithClock(f.clock.Now))

	if _, err := svc.Login(context.Background(), "alice", "Abc12345!", testClient); !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
}

func TestConcurrentLoginsGetIndependentSessions(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Abc12345!", true, false)
	ctx := context.Background()

	const n = 8
	results := make([]*LoginResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Login(ctx, "alice", "Abc12345!", testClient)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("login %d: %v", i, errs[i])
		}
		claims, err := f.codec.Parse(results[i].AccessToken)
		if err != nil {
			t.Fatalf("parse %d: %v", i, err)
		}
		if _, dup := seen[claims.ID]; dup {
			t.Fatalf("duplicate session id %s", claims.ID)
		}
		seen[claims.ID] = struct{}{}
		if _, err := f.store.Sessions(ctx).GetActive(ctx, claims.ID); err != nil {
			t.Fatalf("session %d not active: %v", i, err)
		}
	}
}
