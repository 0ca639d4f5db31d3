package tokenstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Redis shares tokens between client processes through a redis instance.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis stores keys as prefix+key. An empty prefix defaults to "iaeco:".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "iaeco:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Put(ctx context.Context, values map[string]string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range sortedKeys(values) {
			p.Set(ctx, r.prefix+k, values[k], 0)
		}
		return nil
	})
	return err
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	return r.client.Del(ctx, full...).Err()
}
