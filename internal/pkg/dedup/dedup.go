package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "devplan:dedup:upload:"

// Deduplicator remembers recently uploaded file contents per user so a double
// submitted upload is stored once.
type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDeduplicator remembers fingerprints in rdb for ttl.
func NewDeduplicator(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Deduplicator{
		rdb: rdb,
		ttl: ttl,
	}
}

// Fingerprint identifies content uploaded by one user.
func Fingerprint(userID string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// IsDuplicate records fingerprint and reports whether it was already recorded within the window.
func (d *Deduplicator) IsDuplicate(ctx context.Context, fingerprint string) (bool, error) {
	if d == nil || d.rdb == nil || fingerprint == "" {
		return false, nil
	}
	ok, err := d.rdb.SetNX(ctx, keyPrefix+fingerprint, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}

// Delete forgets fingerprint, e.g. after a failed upload or when the evidence is removed.
func (d *Deduplicator) Delete(ctx context.Context, fingerprint string) error {
	if d == nil || d.rdb == nil || fingerprint == "" {
		return nil
	}
	if err := d.rdb.Del(ctx, keyPrefix+fingerprint).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}
