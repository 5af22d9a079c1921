package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/portunusbank/portunus/logger"
)

// RedisStore implements Store using Redis for deployments where sessions must
// survive a process restart.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-based session store.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "portunus:session:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis session: get failed: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("redis session: decode failed: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("redis session: record must have an id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis session: encode failed: %w", err)
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}

	if err := s.client.Set(ctx, s.key(rec.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis session: save failed: %w", err)
	}
	return nil
}

// Destroy removes the record. Deleting a key that is already gone is not an
// error, which keeps the revocation double pass idempotent.
func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis session: destroy failed: %w", err)
	}
	return nil
}

// All enumerates every session record under the key prefix. Records that fail
// to decode are skipped so one corrupt entry cannot poison the whole scan.
func (s *RedisStore) All(ctx context.Context) (map[string]*Record, error) {
	out := make(map[string]*Record)

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("redis session: enumerate failed: %w", err)
		}

		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			if logger.Log != nil {
				logger.Log.Warn("skipping undecodable session record",
					zap.String("key", key), zap.Error(err))
			}
			continue
		}
		out[rec.ID] = &rec
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis session: scan failed: %w", err)
	}

	return out, nil
}
