package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
)

const scanBatch = 500

// RedisOptions configures a RedisStore
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore is a Store backed by Redis. Operations run behind a circuit
// breaker so an unreachable server fails fast.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	breaker *gobreaker.CircuitBreaker
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, opts.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &RedisStore{
		client:  client,
		prefix:  prefix,
		breaker: cb,
	}
}

func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := rs.breaker.Execute(func() (interface{}, error) {
		data, err := rs.client.Get(ctx, rs.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	data, _ := res.([]byte)
	if data == nil {
		return nil, false, nil
	}
	return data, true, nil
}

// Set stores value; a ttl of NoExpiry keeps it until deleted
func (rs *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := rs.breaker.Execute(func() (interface{}, error) {
		return nil, rs.client.Set(ctx, rs.prefix+key, value, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

func (rs *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = rs.prefix + k
	}
	_, err := rs.breaker.Execute(func() (interface{}, error) {
		return nil, rs.client.Del(ctx, full...).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to delete cache entries: %w", err)
	}
	return nil
}

// Keys scans the store's prefix and returns keys with the prefix removed
func (rs *RedisStore) Keys(ctx context.Context) ([]string, error) {
	res, err := rs.breaker.Execute(func() (interface{}, error) {
		var keys []string
		iter := rs.client.Scan(ctx, 0, rs.prefix+"*", scanBatch).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, strings.TrimPrefix(iter.Val(), rs.prefix))
		}
		return keys, iter.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	keys, _ := res.([]string)
	return keys, nil
}

// Ping checks Redis connectivity
func (rs *RedisStore) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
