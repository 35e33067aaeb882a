package paramstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ghalamif/QShield/internal/ports"
)

const DefaultRedisKey = "qshield:model:bundle"

// kv is the subset of redis.Cmdable the store needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps the model bundle under one Redis key so a fleet of
// classifiers can share a trained model.
type RedisStore struct {
	client kv
	key    string
}

var _ ports.ParamStore = (*RedisStore)(nil)

func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	return newRedisStore(client, key)
}

func newRedisStore(client kv, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (r *RedisStore) Name() string { return "redis:" + r.key }

func (r *RedisStore) Get(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrParamsNotFound
	}
	return data, err
}

func (r *RedisStore) Put(ctx context.Context, data []byte) error {
	return r.client.Set(ctx, r.key, data, 0).Err()
}
