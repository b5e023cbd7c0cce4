package settings

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client; the caller owns connectivity.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, settingKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotSet
		}
		return "", err
	}
	return v, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, settingKey(key), value, 0).Err()
}

func (r *RedisStore) SetNX(ctx context.Context, key, value string) (bool, error) {
	return r.client.SetNX(ctx, settingKey(key), value, 0).Result()
}

func (r *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, settingKey(key)).Result()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func settingKey(key string) string {
	return "settings:" + key
}
