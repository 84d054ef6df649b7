package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript performs the check-and-increment server side so concurrent
// instances sharing one redis never over-admit a window.
var consumeScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
	return {count, 0}
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {count, 1}
`)

// RedisCounterStore shares window counters across server instances. It is
// the deployment answer to running more than one process behind a balancer.
type RedisCounterStore struct {
	rdb redis.UniversalClient
}

func (s *RedisCounterStore) Consume(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	ret, err := consumeScript.Run(ctx, s.rdb, []string{key}, limit, ttl.Milliseconds()).Result()
	if err != nil {
		return 0, false, err
	}
	values, ok := ret.([]interface{})
	if !ok || len(values) != 2 {
		return 0, false, fmt.Errorf("unexpected script reply: %v", ret)
	}
	count, _ := values[0].(int64)
	incremented, _ := values[1].(int64)
	return count, incremented == 1, nil
}

func NewRedisCounterStore(rdb redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{rdb: rdb}
}
