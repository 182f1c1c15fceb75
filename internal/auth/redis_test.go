package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisSessions(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis, *testClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := newTestClock()
	store := NewRedisSessionStore(client)
	store.now = clock.Now
	return store, mr, clock
}

func redisTestSession(clock *testClock, tokenID string) *Session {
	now := clock.Now()
	return &Session{
		ID:        "s-" + tokenID,
		UserID:    7,
		TokenID:   tokenID,
		IPAddress: "192.0.2.10",
		UserAgent: "go-test",
		CreatedAt: now,
		ExpiresAt: now.Add(30 * time.Minute),
		IsActive:  true,
	}
}

func TestRedisCreateAndGetActive(t *testing.T) {
	store, mr, clock := newRedisSessions(t)
	ctx := context.Background()

	sess := redisTestSession(clock, "jti-1")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The record's TTL is pinned to the token expiry.
	ttl := mr.TTL(sessionKeyPrefix + "jti-1")
	if ttl <= 0 || ttl > 30*time.Minute {
		t.Fatalf("unexpected ttl: %v", ttl)
	}

	got, err := store.GetActive(ctx, "jti-1")
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if got.UserID != sess.UserID || got.TokenID != "jti-1" || !got.IsActive {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestRedisCreateDuplicate(t *testing.T) {
	store, _, clock := newRedisSessions(t)
	ctx := context.Background()

	if err := store.Create(ctx, redisTestSession(clock, "jti-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, redisTestSession(clock, "jti-1")); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRedisCreateRejectsExpired(t *testing.T) {
	store, _, clock := newRedisSessions(t)

	sess := redisTestSession(clock, "jti-old")
	sess.ExpiresAt = clock.Now().Add(-time.Minute)
	if err := store.Create(context.Background(), sess); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRedisGetActiveMissing(t *testing.T) {
	store, _, _ := newRedisSessions(t)

	if _, err := store.GetActive(context.Background(), "jti-none"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisGetActiveExpired(t *testing.T) {
	store, _, clock := newRedisSessions(t)
	ctx := context.Background()

	if err := store.Create(ctx, redisTestSession(clock, "jti-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Even before Redis reaps the key, a past expiry means absent.
	clock.Advance(31 * time.Minute)
	if _, err := store.GetActive(ctx, "jti-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisRevokeIdempotent(t *testing.T) {
	store, mr, clock := newRedisSessions(t)
	ctx := context.Background()

	if err := store.Create(ctx, redisTestSession(clock, "jti-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	found, err := store.Revoke(ctx, "jti-1", clock.Now())
	if err != nil || !found {
		t.Fatalf("first revoke: %v %v", found, err)
	}
	found, err = store.Revoke(ctx, "jti-1", clock.Now())
	if err != nil || found {
		t.Fatalf("second revoke must report false: %v %v", found, err)
	}

	if _, err := store.GetActive(ctx, "jti-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoked session must be absent, got %v", err)
	}

	// The revoked record is kept (with its TTL) rather than deleted.
	if !mr.Exists(sessionKeyPrefix + "jti-1") {
		t.Fatal("revoked record must survive until natural expiry")
	}
}

func TestRedisRevokeUnknown(t *testing.T) {
	store, _, clock := newRedisSessions(t)

	found, err := store.Revoke(context.Background(), "jti-none", clock.Now())
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if found {
		t.Fatal("revoking an unknown session must report false")
	}
}
