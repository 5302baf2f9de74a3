package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gogotex/collabdocs/internal/checkpoint"
	"github.com/gogotex/collabdocs/internal/document"
	"github.com/redis/go-redis/v9"
)

// RedisStore shares checkpoints between replicas. Each document uses two
// keys in the same hash slot:
//
//	<prefix>checkpoint:{<id>}:meta   hash: snapshotVersion, content, updatedAt (unix ms)
//	<prefix>checkpoint:{<id>}:steps  list: JSON step-batches since the snapshot
//
// The version is snapshotVersion + LLEN(steps). Writers WATCH both keys, so
// a concurrent commit aborts the transaction and surfaces as a conflict.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) keys(id document.ID) (meta, steps string) {
	base := fmt.Sprintf("%scheckpoint:{%s}", r.prefix, id)
	return base + ":meta", base + ":steps"
}

func (r *RedisStore) Load(ctx context.Context, id document.ID) (*checkpoint.State, error) {
	metaKey, stepsKey := r.keys(id)
	var (
		meta  *redis.MapStringStringCmd
		steps *redis.StringSliceCmd
	)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		meta = p.HGetAll(ctx, metaKey)
		steps = p.LRange(ctx, stepsKey, 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis load checkpoint %s: %w", id, err)
	}

	s := &checkpoint.State{DocumentID: id}
	m := meta.Val()
	if v, ok := m["snapshotVersion"]; ok {
		if s.SnapshotVersion, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("redis checkpoint %s: bad snapshotVersion %q", id, v)
		}
	}
	if c, ok := m["content"]; ok && c != "" {
		s.Content = json.RawMessage(c)
	}
	if v, ok := m["updatedAt"]; ok {
		ms, _ := strconv.ParseInt(v, 10, 64)
		s.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	for i, raw := range steps.Val() {
		var b checkpoint.StepBatch
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			return nil, fmt.Errorf("redis checkpoint %s: decode batch %d: %w", id, i, err)
		}
		s.Steps = append(s.Steps, b)
	}
	return s, nil
}

// version reads the current version inside a WATCH.
func version(ctx context.Context, tx *redis.Tx, metaKey, stepsKey string) (int64, error) {
	snap, err := tx.HGet(ctx, metaKey, "snapshotVersion").Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	n, err := tx.LLen(ctx, stepsKey).Result()
	if err != nil {
		return 0, err
	}
	return snap + n, nil
}

// cas runs write when the current version equals base.
func (r *RedisStore) cas(ctx context.Context, id document.ID, base int64, write func(p redis.Pipeliner, metaKey, stepsKey string)) error {
	metaKey, stepsKey := r.keys(id)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := version(ctx, tx, metaKey, stepsKey)
		if err != nil {
			return err
		}
		if cur != base {
			return checkpoint.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			write(p, metaKey, stepsKey)
			return nil
		})
		return err
	}, metaKey, stepsKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, checkpoint.ErrConflict), errors.Is(err, redis.TxFailedErr):
		return checkpoint.ErrConflict
	default:
		return fmt.Errorf("redis commit checkpoint %s: %w", id, err)
	}
}

func (r *RedisStore) AppendSteps(ctx context.Context, id document.ID, b checkpoint.StepBatch) (int64, error) {
	encoded, err := json.Marshal(b)
	if err != nil {
		return 0, fmt.Errorf("encode step batch: %w", err)
	}
	err = r.cas(ctx, id, b.BaseVersion, func(p redis.Pipeliner, metaKey, stepsKey string) {
		// HSETNX keeps an existing snapshotVersion and creates the record lazily
		p.HSetNX(ctx, metaKey, "snapshotVersion", 0)
		p.HSet(ctx, metaKey, "updatedAt", b.AcceptedAt.UnixMilli())
		p.RPush(ctx, stepsKey, encoded)
	})
	if err != nil {
		return 0, err
	}
	return b.BaseVersion + 1, nil
}

func (r *RedisStore) Compact(ctx context.Context, id document.ID, base int64, content json.RawMessage, at time.Time) (int64, error) {
	err := r.cas(ctx, id, base, func(p redis.Pipeliner, metaKey, stepsKey string) {
		p.HSet(ctx, metaKey,
			"snapshotVersion", base+1,
			"content", string(content),
			"updatedAt", at.UnixMilli())
		p.Del(ctx, stepsKey)
	})
	if err != nil {
		return 0, err
	}
	return base + 1, nil
}

func (r *RedisStore) Delete(ctx context.Context, id document.ID) error {
	metaKey, stepsKey := r.keys(id)
	if err := r.client.Del(ctx, metaKey, stepsKey).Err(); err != nil {
		return fmt.Errorf("redis delete checkpoint %s: %w", id, err)
	}
	return nil
}
