package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist records revoked access tokens in Redis until they would have
// expired anyway. A Blacklist without a client accepts every token.
type Blacklist struct {
	client *redis.Client
	prefix string
}

// NewBlacklist returns a blacklist storing keys under prefix+"revoked:".
// Safe to call with a nil client to disable revocation.
func NewBlacklist(client *redis.Client, prefix string) *Blacklist {
	return &Blacklist{client: client, prefix: prefix + "revoked:"}
}

// Tokens are stored hashed so the keyspace never holds a usable credential.
func (b *Blacklist) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return b.prefix + hex.EncodeToString(sum[:])
}

// Enabled reports whether revocations are persisted.
func (b *Blacklist) Enabled() bool { return b != nil && b.client != nil }

// Revoke blacklists token for ttl. A non-positive ttl is a no-op since the
// token has already expired.
func (b *Blacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if !b.Enabled() || ttl <= 0 {
		return nil
	}
	return b.client.Set(ctx, b.key(token), "1", ttl).Err()
}

// IsRevoked reports whether token was revoked and has not expired since.
func (b *Blacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	if !b.Enabled() {
		return false, nil
	}
	n, err := b.client.Exists(ctx, b.key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
