// Package redis stores the phone-save marker in Redis, for deployments where
// several operator consoles share one marker.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/pairlink/internal/store"
)

// RedisMarkerStore keeps the marker under a single Redis key.
type RedisMarkerStore struct {
	client *goredis.Client
	key    string
	// expiration is applied to the key so Redis drops stale markers on its own.
	// Zero means no expiry.
	expiration time.Duration
}

// Open connects to the Redis server at url (redis://...).
func Open(ctx context.Context, url, key string, expiration time.Duration) (*RedisMarkerStore, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("marker store opened", "driver", "redis", "addr", opts.Addr)
	return New(client, key, expiration), nil
}

// New wraps an existing client.
func New(client *goredis.Client, key string, expiration time.Duration) *RedisMarkerStore {
	if key == "" {
		key = store.DefaultMarkerKey
	}
	return &RedisMarkerStore{client: client, key: key, expiration: expiration}
}

func (s *RedisMarkerStore) Get(ctx context.Context) (*store.SaveMarker, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read marker: %w", err)
	}
	var m store.SaveMarker
	if err := json.Unmarshal(data, &m); err != nil {
		slog.Warn("marker: ignoring unreadable value", "key", s.key, "error", err)
		return nil, nil
	}
	return &m, nil
}

func (s *RedisMarkerStore) Put(ctx context.Context, m store.SaveMarker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.expiration).Err(); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

func (s *RedisMarkerStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	return nil
}

func (s *RedisMarkerStore) Close() error {
	return s.client.Close()
}
