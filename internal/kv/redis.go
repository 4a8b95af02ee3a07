package kv

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only while it still carries our owner
// token, so a lease that expired and was re-acquired elsewhere survives.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Redis implements Store and Locker on a go-redis client.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedis wraps rdb.  All keys are namespaced with prefix.
func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *Redis) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Consume uses GETDEL so two concurrent consumers can never both see the
// value.
func (r *Redis) Consume(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.GetDel(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.key(key)).Err()
}

// TryLock issues SET NX PX with a random owner token.
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	token := uuid.NewString()
	k := r.key(key)
	ok, err := r.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockBusy
	}
	return &redisLock{rdb: r.rdb, key: k, token: token}, nil
}

type redisLock struct {
	rdb   redis.UniversalClient
	key   string
	token string
}

func (l *redisLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}

var (
	_ Store  = (*Redis)(nil)
	_ Locker = (*Redis)(nil)
)
