package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "authkeep:session:"

// revokeSessionScript deactivates a session atomically while keeping the
// record (and its TTL) around, so a concurrent GetActive can never observe a
// half-written revoke. Returns 1 when the flag was flipped, 0 otherwise.
const revokeSessionScript = `
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local sess = cjson.decode(raw)
if not sess.is_active then
  return 0
end
sess.is_active = false
sess.revoked_at = ARGV[1]
redis.call("SET", KEYS[1], cjson.encode(sess), "KEEPTTL")
return 1
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// RedisSessionStore keeps the session ledger in Redis, keyed by jti, with the
// record TTL pinned to the token's natural expiry. Revoked records stay until
// that expiry so duplicate revokes stay observable no-ops.
type RedisSessionStore struct {
	client *redis.Client
	now    func() time.Time
}

var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore wraps a connected client.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, now: time.Now}
}

func (s *RedisSessionStore) key(tokenID string) string {
	return sessionKeyPrefix + tokenID
}

func (s *RedisSessionStore) Create(ctx context.Context, sess *Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("%w: session already expired", ErrInvalidInput)
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	// NX guards the at-most-one-record-per-jti invariant.
	ok, err := s.client.SetNX(ctx, s.key(sess.TokenID), raw, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (s *RedisSessionStore) GetActive(ctx context.Context, tokenID string) (*Session, error) {
	raw, err := s.client.Get(ctx, s.key(tokenID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if !sess.IsActive || !sess.ExpiresAt.After(s.now()) {
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (s *RedisSessionStore) Revoke(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	res, err := revokeSessionLua.Run(ctx, s.client,
		[]string{s.key(tokenID)}, at.UTC().Format(time.RFC3339Nano)).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
