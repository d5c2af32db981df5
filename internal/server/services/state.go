package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

// StateStore remembers issued OAuth state values until they are consumed
// or expire. A state can be consumed at most once.
type StateStore interface {
	Save(ctx context.Context, state string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (bool, error)
}

// MemoryStateStore keeps states in a process-local TTL cache. It is only
// correct for single-instance deployments.
type MemoryStateStore struct {
	cache *ttlcache.Cache[string, struct{}]
}

func NewMemoryStateStore() *MemoryStateStore {
	cache := ttlcache.New[string, struct{}](
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go cache.Start()
	return &MemoryStateStore{cache: cache}
}

func (s *MemoryStateStore) Save(_ context.Context, state string, ttl time.Duration) error {
	s.cache.Set(state, struct{}{}, ttl)
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (bool, error) {
	item, ok := s.cache.GetAndDelete(state)
	if !ok || item == nil || item.IsExpired() {
		return false, nil
	}
	return true, nil
}

// Close stops the expiry loop.
func (s *MemoryStateStore) Close() error {
	s.cache.Stop()
	return nil
}

const redisStatePrefix = "gsheetsmcp:oauth_state:"

// RedisStateStore shares states between instances through Redis.
type RedisStateStore struct {
	client *redis.Client
}

// NewRedisStateStore connects to the Redis server at url
// (redis://[user:pass@]host:port/db).
func NewRedisStateStore(ctx context.Context, url string) (*RedisStateStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}

	return newRedisStateStore(ctx, redis.NewClient(opts))
}

func newRedisStateStore(ctx context.Context, client *redis.Client) (*RedisStateStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStateStore{client: client}, nil
}

func (s *RedisStateStore) Save(ctx context.Context, state string, ttl time.Duration) error {
	if err := s.client.Set(ctx, redisStatePrefix+state, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Consume deletes the key; only the caller that actually removed it wins.
func (s *RedisStateStore) Consume(ctx context.Context, state string) (bool, error) {
	n, err := s.client.Del(ctx, redisStatePrefix+state).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
