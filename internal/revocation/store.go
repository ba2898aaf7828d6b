// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

// Package revocation is the short-lived key/value store behind access token
// blacklisting and login attempt counting.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// DefaultBlacklistTTL applies to tokens that carry no readable expiry.
const DefaultBlacklistTTL = 15 * time.Minute

// DefaultOpTimeout bounds every store call.
const DefaultOpTimeout = 250 * time.Millisecond

const blacklistPrefix = "blacklist:"

// errMiss marks an absent key.
var errMiss = errors.New("key not found")

// client is the subset of Redis operations the store uses.
type client interface {
	set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	get(ctx context.Context, key string) ([]byte, error)
	exists(ctx context.Context, key string) (bool, error)
	increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	del(ctx context.Context, key string) error
	ping(ctx context.Context) error
	close() error
}

// Config configures the store.
type Config struct {
	Enabled      bool
	Addr         string
	Username     string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// OpTimeout bounds each call, including retries inside the client.
	OpTimeout time.Duration
	Prefix    string
}

// DefaultConfig returns a configuration for a local Redis.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Addr:         "localhost:6379",
		PoolSize:     10,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		OpTimeout:    DefaultOpTimeout,
		Prefix:       "flickmate:",
	}
}

// Store is a prefixed TTL store. Failures are counted and logged once per
// outage; reads fail open.
type Store struct {
	client    client
	prefix    string
	opTimeout time.Duration
	logger    *slog.Logger
	now       func() time.Time
	degraded  atomic.Bool
}

// New connects to Redis, or returns a store that keeps nothing when
// cfg.Enabled is false.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		logger.Info("revocation store disabled")
		return newStore(noopClient{}, cfg, logger), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("REVOCATION_CONNECT_FAILED").
			With("addr", cfg.Addr).
			Wrap(err)
	}
	logger.Info("connected to revocation store", "addr", cfg.Addr, "db", cfg.DB)
	return newStore(&redisClient{rdb: rdb}, cfg, logger), nil
}

func newStore(c client, cfg Config, logger *slog.Logger) *Store {
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return &Store{
		client:    c,
		prefix:    cfg.Prefix,
		opTimeout: timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// Blacklist stores a digest of accessToken until the token expires.
// Already expired tokens are skipped.
func (s *Store) Blacklist(ctx context.Context, accessToken string) error {
	ttl := s.remaining(accessToken)
	if ttl <= 0 {
		return nil
	}
	err := s.do(ctx, "blacklist", func(ctx context.Context) error {
		return s.client.set(ctx, s.key(blacklistPrefix+digest(accessToken)), []byte("1"), ttl)
	})
	if err != nil {
		return oops.Code("REVOCATION_BLACKLIST_FAILED").Wrap(err)
	}
	return nil
}

// IsBlacklisted reports whether accessToken was blacklisted. Store errors
// report false.
func (s *Store) IsBlacklisted(ctx context.Context, accessToken string) bool {
	var found bool
	err := s.do(ctx, "is_blacklisted", func(ctx context.Context) error {
		var err error
		found, err = s.client.exists(ctx, s.key(blacklistPrefix+digest(accessToken)))
		return err
	})
	return err == nil && found
}

// Set stores value under key for ttl.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.do(ctx, "set", func(ctx context.Context) error {
		return s.client.set(ctx, s.key(key), value, ttl)
	})
	if err != nil {
		return oops.Code("REVOCATION_SET_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// Get returns the value under key. found is false for absent keys.
func (s *Store) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	err = s.do(ctx, "get", func(ctx context.Context) error {
		var getErr error
		value, getErr = s.client.get(ctx, s.key(key))
		if errors.Is(getErr, errMiss) {
			return nil
		}
		found = getErr == nil
		return getErr
	})
	if err != nil {
		return nil, false, oops.Code("REVOCATION_GET_FAILED").With("key", key).Wrap(err)
	}
	return value, found, nil
}

// Increment adds one to the counter under key and refreshes its TTL.
func (s *Store) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var n int64
	err := s.do(ctx, "increment", func(ctx context.Context) error {
		var err error
		n, err = s.client.increment(ctx, s.key(key), ttl)
		return err
	})
	if err != nil {
		return 0, oops.Code("REVOCATION_INCREMENT_FAILED").Wrap(err)
	}
	return n, nil
}

// Count returns the counter under key, zero when absent.
func (s *Store) Count(ctx context.Context, key string) (int64, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, oops.Code("REVOCATION_COUNT_INVALID").With("key", key).Wrap(err)
	}
	return n, nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.do(ctx, "delete", func(ctx context.Context) error {
		return s.client.del(ctx, s.key(key))
	})
	if err != nil {
		return oops.Code("REVOCATION_DELETE_FAILED").Wrap(err)
	}
	return nil
}

// Ping checks the store answers within the operation timeout.
func (s *Store) Ping(ctx context.Context) error {
	return s.do(ctx, "ping", s.client.ping)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.close()
}

// do runs op under the operation timeout and tracks store health.
func (s *Store) do(ctx context.Context, operation string, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := op(ctx); err != nil {
		StoreErrorsTotal.WithLabelValues(operation).Inc()
		if s.degraded.CompareAndSwap(false, true) {
			s.logger.WarnContext(ctx, "revocation store unavailable",
				"operation", operation,
				"error", err)
		}
		return err
	}
	if s.degraded.CompareAndSwap(true, false) {
		s.logger.InfoContext(ctx, "revocation store recovered")
	}
	return nil
}

// remaining returns how long accessToken stays valid. The signature is not
// checked; the token only determines a TTL here.
func (s *Store) remaining(accessToken string) time.Duration {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil || claims.ExpiresAt == nil {
		return DefaultBlacklistTTL
	}
	return claims.ExpiresAt.Sub(s.now())
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// digest keeps raw tokens out of the key space.
func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
