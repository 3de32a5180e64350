package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "persona-bot:watermarks"

type RedisBackend struct {
	client *redis.Client
	key    string
}

func NewRedisBackend(ctx context.Context, url, key string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisBackend{client: client, key: key}, nil
}

func (r *RedisBackend) Load(ctx context.Context) (Watermarks, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Watermarks{}, ErrNotFound
	}
	if err != nil {
		return Watermarks{}, fmt.Errorf("load redis state: %w", err)
	}
	var w Watermarks
	if err := json.Unmarshal(data, &w); err != nil {
		return Watermarks{}, fmt.Errorf("decode redis state: %w", err)
	}
	return w, nil
}

func (r *RedisBackend) Save(ctx context.Context, w Watermarks) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save redis state: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
