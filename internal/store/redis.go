// redis.go
package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"burnbox.dev/internal/models"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps each record as a hash plus a by-expiry sorted-set
// index that Sweep selects from. Keys also carry a TTL of expiration
// plus grace as a backstop in case the sweep stops running.
type RedisStore struct {
	client *redis.Client
	grace  time.Duration
}

func NewRedisStore(options *redis.Options, grace time.Duration) (*RedisStore, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client, grace: grace}, nil
}

func (r *RedisStore) Save(ctx context.Context, secret *models.Secret) error {
	key := secretKey(secret.PublicID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"ciphertext", secret.Ciphertext,
			"max_views", secret.MaxViews,
			"views", secret.Views,
			"expires_at", secret.ExpiresAt.Unix(),
			"created_at", secret.CreatedAt.Unix(),
		)
		pipe.ZAdd(ctx, expiryIndexKey, redis.Z{
			Score:  float64(secret.ExpiresAt.Unix()),
			Member: secret.PublicID,
		})
		if ttl := time.Until(secret.ExpiresAt.Add(r.grace)); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Secret, error) {
	fields, err := r.client.HGetAll(ctx, secretKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeFields(id, fields)
}

// The whole state check and the increment run server-side in one step;
// concurrent viewers of the last remaining view cannot both pass.
var viewScript = redis.NewScript(`
	local exp = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
	if not exp then
		return -1
	end
	if tonumber(ARGV[1]) >= exp then
		return -2
	end
	local views = tonumber(redis.call('HGET', KEYS[1], 'views'))
	local max = tonumber(redis.call('HGET', KEYS[1], 'max_views'))
	if views >= max then
		return -3
	end
	return redis.call('HINCRBY', KEYS[1], 'views', 1)
`)

func (r *RedisStore) View(ctx context.Context, id string) (*models.Secret, error) {
	key := secretKey(id)

	res, err := viewScript.Run(ctx, r.client, []string{key}, time.Now().Unix()).Int64()
	if err != nil {
		return nil, err
	}
	switch res {
	case -1:
		return nil, ErrNotFound
	case -2:
		return nil, ErrExpired
	case -3:
		return nil, ErrExhausted
	}

	secret, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Swept between the increment and the read-back.
			return nil, ErrNotFound
		}
		return nil, err
	}
	// Report the count this call observed, not a racer's later one.
	secret.Views = int(res)
	return secret, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, secretKey(id))
		pipe.ZRem(ctx, expiryIndexKey, id)
		return nil
	})
	return err
}

func (r *RedisStore) Sweep(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := time.Now().Add(-grace).Unix()

	// Snapshot of expired ids; each record is then deleted independently,
	// so a concurrent sweep or view never sees partial state.
	ids, err := r.client.ZRangeByScore(ctx, expiryIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		if err := r.Delete(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Helpers

const expiryIndexKey = "secrets:expiry"

func secretKey(id string) string {
	return "secret:" + id
}

func decodeFields(id string, fields map[string]string) (*models.Secret, error) {
	maxViews, err := strconv.Atoi(fields["max_views"])
	if err != nil {
		return nil, err
	}
	views, err := strconv.Atoi(fields["views"])
	if err != nil {
		return nil, err
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, err
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, err
	}

	return &models.Secret{
		PublicID:   id,
		Ciphertext: fields["ciphertext"],
		MaxViews:   maxViews,
		Views:      views,
		ExpiresAt:  time.Unix(expiresAt, 0),
		CreatedAt:  time.Unix(createdAt, 0),
	}, nil
}
