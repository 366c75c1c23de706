package apikey

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

// RedisStore backs Store with Redis hashes so usage counters serialize
// on the key row across gateway processes (spec §5 "Per-key usage
// updates serialize on the key row in the persistence layer").
type RedisStore struct {
	client       redis.UniversalClient
	prefix       string
	wildcardHash string
}

// NewRedisStore wraps an existing Redis client. keyPrefix namespaces
// this gateway's keys within a shared Redis instance.
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "cc-gw"
	}
	return &RedisStore{client: client, prefix: keyPrefix}
}

// SetWildcard designates which hashed token is treated as the wildcard
// key for subsequent Wildcard lookups.
func (s *RedisStore) SetWildcard(hashedToken string) {
	s.wildcardHash = hashedToken
}

func (s *RedisStore) keyRow(hashedToken string) string {
	return fmt.Sprintf("%s:apikey:%s", s.prefix, hashedToken)
}

func (s *RedisStore) idIndexKey(id string) string {
	return fmt.Sprintf("%s:apikey-id:%s", s.prefix, id)
}

// Register writes a key's static fields (id, disabled) so later Get
// calls can resolve it, plus an id->hash index so RecordUsage (which
// only carries a resolved Key.ID) can find the row without a scan.
// Counters start at zero unless already present.
func (s *RedisStore) Register(ctx context.Context, hashedToken string, id string, disabled bool) error {
	row := s.keyRow(hashedToken)
	if err := s.client.HSet(ctx, row, map[string]any{
		"id":       id,
		"disabled": disabled,
	}).Err(); err != nil {
		return err
	}
	return s.client.Set(ctx, s.idIndexKey(id), hashedToken, 0).Err()
}

func (s *RedisStore) Get(ctx context.Context, hashedToken string) (*Key, error) {
	row := s.keyRow(hashedToken)
	vals, err := s.client.HGetAll(ctx, row).Result()
	if err != nil {
		return nil, fmt.Errorf("apikey: redis hgetall failed: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrKeyNotFound
	}
	k := &Key{
		ID:       vals["id"],
		Disabled: vals["disabled"] == "1" || vals["disabled"] == "true",
		Wildcard: hashedToken == s.wildcardHash,
	}
	if v, ok := vals["request_count"]; ok {
		fmt.Sscanf(v, "%d", &k.RequestCount)
	}
	if v, ok := vals["input_tokens"]; ok {
		fmt.Sscanf(v, "%d", &k.InputTokens)
	}
	if v, ok := vals["output_tokens"]; ok {
		fmt.Sscanf(v, "%d", &k.OutputTokens)
	}
	if v, ok := vals["last_used_at"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			k.LastUsedAt = ts
		}
	}
	return k, nil
}

func (s *RedisStore) Wildcard(ctx context.Context) (*Key, error) {
	if s.wildcardHash == "" {
		return nil, ErrKeyNotFound
	}
	return s.Get(ctx, s.wildcardHash)
}

// RecordUsage increments counters atomically via a pipeline so
// concurrent gateway instances never interleave a read-modify-write on
// the same row.
func (s *RedisStore) RecordUsage(ctx context.Context, keyID string, usage model.TokenUsage) error {
	row, err := s.rowForID(ctx, keyID)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, row, "request_count", 1)
	pipe.HIncrBy(ctx, row, "input_tokens", int64(usage.InputTokens))
	pipe.HIncrBy(ctx, row, "output_tokens", int64(usage.OutputTokens))
	pipe.HSet(ctx, row, "last_used_at", time.Now().Format(time.RFC3339Nano))
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("apikey: redis usage pipeline failed: %w", err)
	}
	return nil
}

// rowForID resolves a key's row through the id->hash index written by
// Register.
func (s *RedisStore) rowForID(ctx context.Context, keyID string) (string, error) {
	hash, err := s.client.Get(ctx, s.idIndexKey(keyID)).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("apikey: redis id index lookup failed: %w", err)
	}
	return s.keyRow(hash), nil
}
