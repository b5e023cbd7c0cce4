package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ CounterStore = (*RedisCounters)(nil)

type RedisCounters struct {
	client *redis.Client
}

func NewRedisCounters(client *redis.Client) *RedisCounters {
	return &RedisCounters{client: client}
}

// Check-and-increment in one server-side step so two concurrent requests
// for the same key can never both slip under the limit.
var incrBelowScript = redis.NewScript(`
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

func (r *RedisCounters) IncrBelow(ctx context.Context, key string, limit int, window time.Duration) (int64, bool, error) {
	res, err := incrBelowScript.Run(ctx, r.client,
		[]string{counterRedisKey(key)},
		limit, window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return 0, false, err
	}

	count := res[0]
	return count, res[1] == 1, nil
}

func (r *RedisCounters) Close() error {
	return r.client.Close()
}

func counterRedisKey(key string) string {
	return "ratelimit:" + key
}
