// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient adapts *redis.Client to client.
type redisClient struct {
	rdb *redis.Client
}

func (r *redisClient) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *redisClient) get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errMiss
	}
	return val, err
}

func (r *redisClient) exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key).Result()
	return n == 1, err
}

func (r *redisClient) increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *redisClient) del(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

func (r *redisClient) ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *redisClient) close() error {
	return r.rdb.Close()
}

// noopClient stores nothing. Used when the store is disabled.
type noopClient struct{}

func (noopClient) set(context.Context, string, []byte, time.Duration) error        { return nil }
func (noopClient) get(context.Context, string) ([]byte, error)                     { return nil, errMiss }
func (noopClient) exists(context.Context, string) (bool, error)                    { return false, nil }
func (noopClient) increment(context.Context, string, time.Duration) (int64, error) { return 0, nil }
func (noopClient) del(context.Context, string) error                               { return nil }
func (noopClient) ping(context.Context) error                                      { return nil }
func (noopClient) close() error                                                    { return nil }
