package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"SupplySentinel/internal/model"
)

// DefaultRedisKey is where the snapshot lives when no key is configured.
const DefaultRedisKey = "supply-sentinel:backup:emissions"

// RedisStore keeps the snapshot as a JSON string under one key, with no expiry.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore wraps client. An empty key uses DefaultRedisKey.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Read loads the snapshot. A missing key yields nil, nil.
func (r *RedisStore) Read(ctx context.Context) (*model.BackupSnapshot, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get backup %s: %w", r.key, err)
	}
	var snap model.BackupSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backup %s: %w", r.key, err)
	}
	return &snap, nil
}

// Write replaces the stored snapshot.
func (r *RedisStore) Write(ctx context.Context, snap *model.BackupSnapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal backup: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set backup %s: %w", r.key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
