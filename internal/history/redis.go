package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/zombor/check-verifier/internal/check"
)

// maxWatchRetries bounds how often Save retries after a concurrent write.
const maxWatchRetries = 100

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Redis implements the Repository interface on a single Redis string key
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a Redis repository. prefix namespaces the key; it may be empty.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, key: prefix + Key}
}

// Save prepends entry in an optimistic WATCH/MULTI transaction
func (r *Redis) Save(ctx context.Context, entry check.StoredCheck) error {
	txf := func(tx *redis.Tx) error {
		blob, err := tx.Get(ctx, r.key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		data, err := prepend(blob, entry)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, r.key, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, r.key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("saving history: %w", err)
	}
	return fmt.Errorf("saving history: %w after %d attempts", redis.TxFailedErr, maxWatchRetries)
}

// List returns the entries newest first
func (r *Redis) List(ctx context.Context) ([]check.StoredCheck, error) {
	blob, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return decode(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return decode(blob), nil
}

// Get returns the entry with the given ID
func (r *Redis) Get(ctx context.Context, id string) (*check.StoredCheck, error) {
	return get(ctx, r, id)
}

// Clear removes the history key
func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (r *Redis) Close() error {
	return r.client.Close()
}
