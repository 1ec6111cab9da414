package store

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/evmauth/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultRevocationPrefix namespaces revoked bearer token ids
const DefaultRevocationPrefix = "evmauth:revoked:"

// RedisStore keeps revoked bearer token ids in Redis so every gate instance
// sharing the server sees the same list
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis store. An empty prefix selects DefaultRevocationPrefix
func NewRedisStore(client *redis.Client, prefix string) ports.Store {
	if prefix == "" {
		prefix = DefaultRevocationPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// InvalidateToken revokes tokenID until expiry elapses
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	if expiry <= 0 {
		return fmt.Errorf("failed to revoke token %s: non-positive expiry %s", tokenID, expiry)
	}
	if err := s.client.Set(ctx, s.prefix+tokenID, "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsTokenInvalidated reports whether tokenID is revoked
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}
