package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/gogotex/collabdocs/internal/document"
	"github.com/redis/go-redis/v9"
)

// RedisTracker keeps one sorted set per document, member = user id,
// score = last heartbeat in unix milliseconds. The set expires keep after
// the last heartbeat so abandoned documents do not linger.
type RedisTracker struct {
	client *redis.Client
	prefix string
	keep   time.Duration
}

func NewRedisTracker(client *redis.Client, prefix string, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, prefix: prefix, keep: 2 * ttl}
}

func (r *RedisTracker) key(id document.ID) string {
	return r.prefix + "presence:" + id.String()
}

func (r *RedisTracker) Heartbeat(ctx context.Context, id document.ID, user string, at time.Time) error {
	key := r.key(id)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: user})
		p.Expire(ctx, key, r.keep)
		return nil
	})
	return err
}

func (r *RedisTracker) Viewers(ctx context.Context, id document.ID, since time.Time) ([]Viewer, error) {
	key := r.key(id)
	cutoff := strconv.FormatInt(since.UnixMilli(), 10)
	var rng *redis.ZSliceCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		rng = p.ZRangeWithScores(ctx, key, 0, -1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]Viewer, 0, len(rng.Val()))
	for _, z := range rng.Val() {
		user, _ := z.Member.(string)
		out = append(out, Viewer{UserID: user, LastSeen: time.UnixMilli(int64(z.Score)).UTC()})
	}
	return out, nil
}

func (r *RedisTracker) Leave(ctx context.Context, id document.ID, user string) error {
	return r.client.ZRem(ctx, r.key(id), user).Err()
}

func (r *RedisTracker) Clear(ctx context.Context, id document.ID) error {
	return r.client.Del(ctx, r.key(id)).Err()
}
