package auth

import (
	"context"
	"sync"
	"time"

	"cardsite-backend/internal/logging"

	"github.com/redis/go-redis/v9"
)

// Revoker is the registry of token ids that must no longer verify.
type Revoker interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) bool
}

// MemoryRevoker keeps revocations in process. Entries are pruned once the
// token would have expired anyway.
type MemoryRevoker struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{entries: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevoker) Revoke(_ context.Context, jti string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, k)
		}
	}
	if until.After(now) {
		m.entries[jti] = until
	}
	return nil
}

func (m *MemoryRevoker) IsRevoked(_ context.Context, jti string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.entries[jti]
	return ok && exp.After(m.now())
}

// RedisRevoker stores one key per revoked token id with the token's
// remaining lifetime as TTL.
type RedisRevoker struct {
	client *redis.Client
	prefix string
}

func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client, prefix: "auth:revoked:"}
}

func (r *RedisRevoker) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+jti, "1", ttl).Err()
}

// IsRevoked fails closed: a Redis error counts as revoked.
func (r *RedisRevoker) IsRevoked(ctx context.Context, jti string) bool {
	n, err := r.client.Exists(ctx, r.prefix+jti).Result()
	if err != nil {
		logging.L.WithError(err).Error("revocation lookup failed")
		return true
	}
	return n > 0
}
