package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps the Redis client behind the small key-value contract the auth
// subsystem needs: get, set-with-expiry, conditional set and windowed
// counters. All cross-request coordination (nonce ledger, rate-limit
// counters, customer-id cache) goes through here.
type Store struct {
	client *redis.Client
}

// New connects to the cache server. The connection is verified lazily; use
// Ping at startup to surface connectivity problems early.
func New(host, port, password string) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0, // use default DB
	})
	return &Store{client: client}
}

// NewFromClient wraps an existing client. Used by tests running against
// miniredis-style fakes of the same interface.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Set stores a value with the given expiration time.
func (s *Store) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return s.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value by key. Returns ("", false, nil) when the key is
// absent so callers do not need to special-case redis.Nil.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Delete removes a value by key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// SetNX sets the key only if it is absent, with the given TTL. Returns true
// when this caller performed the set. Redis guarantees exactly one winner
// among concurrent callers on the same key.
func (s *Store) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

// IncrWindow increments a windowed counter and returns the new count plus
// the time remaining in the current window. The expiry is attached on first
// increment; NX keeps a racing second increment from extending the window.
func (s *Store) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return count, window, err
		}
		return count, window, nil
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return count, 0, err
	}
	if ttl < 0 {
		// Counter lost its expiry (crash between INCR and EXPIRE); reattach.
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return count, window, err
		}
		ttl = window
	}
	return count, ttl, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
