package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store by keeping the whole session mapping as one
// JSON value under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(redisURL, key string) (*RedisStore, error) {
	// Parse Redis URL
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		key:    key,
	}, nil
}

// Load reads the mapping. A missing key is an empty store.
func (r *RedisStore) Load(ctx context.Context) (Sessions, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return Sessions{}, nil
	}
	if err != nil {
		return Sessions{}, fmt.Errorf("failed to load sessions from Redis: %w", err)
	}

	sessions := Sessions{}
	if err := json.Unmarshal(data, &sessions); err != nil {
		return Sessions{}, fmt.Errorf("failed to parse session data: %w", err)
	}
	return sessions, nil
}

// Save overwrites the key with the full mapping. Sessions never expire.
func (r *RedisStore) Save(ctx context.Context, sessions Sessions) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save sessions to Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Ping verifies the Redis connection is alive
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
