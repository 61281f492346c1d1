package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

var incrIfBelowScript = redis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
if n >= tonumber(ARGV[1]) then
	return 0
end
n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

var countScript = redis.NewScript(`
return tonumber(redis.call('GET', KEYS[1]) or '0')
`)

var decrScript = redis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
if n > 0 then
	redis.call('DECR', KEYS[1])
end
return 0
`)

// RedisStore shares counters between server instances. Every mutation runs
// as a Lua script so check, increment and expiry happen atomically. A window
// starts when its key is created; a counter released back to zero keeps it.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

// NewRedisStore creates a store whose keys are namespaced by prefix.
func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Count(ctx context.Context, key string) (int, error) {
	n, err := countScript.Run(ctx, s.client, []string{s.key(key)}).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	return incrScript.Run(ctx, s.client, []string{s.key(key)}, window.Milliseconds()).Int()
}

func (s *RedisStore) IncrementIfBelow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	n, err := incrIfBelowScript.Run(ctx, s.client, []string{s.key(key)}, limit, window.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) Decrement(ctx context.Context, key string) error {
	err := decrScript.Run(ctx, s.client, []string{s.key(key)}).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
