// Package revoke keeps a Redis set of revoked session token IDs (jti).
// Entries expire together with the token they revoke.
package revoke

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "devplan:revoked:"

type Store struct {
	rdb *redis.Client
	now func() time.Time
}

// New creates a revocation store on rdb.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, now: time.Now}
}

// Revoke marks jti as revoked until expiresAt. Already expired tokens are ignored.
func (s *Store) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if s == nil || s.rdb == nil || jti == "" {
		return nil
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, keyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke set: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti was revoked.
func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if s == nil || s.rdb == nil || jti == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("revoke exists: %w", err)
	}
	return n > 0, nil
}
