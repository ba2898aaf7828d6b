// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package revocation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClient is an in-memory client that records TTLs.
type fakeClient struct {
	mu     sync.Mutex
	values map[string][]byte
	ttls   map[string]time.Duration
	err    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeClient) set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.values[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeClient) get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[key]
	if !ok {
		return nil, errMiss
	}
	return v, nil
}

func (f *fakeClient) exists(ctx context.Context, key string) (bool, error) {
	_, err := f.get(ctx, key)
	if errors.Is(err, errMiss) {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeClient) increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	n, _ := strconv.ParseInt(string(f.values[key]), 10, 64)
	n++
	f.values[key] = []byte(strconv.FormatInt(n, 10))
	f.ttls[key] = ttl
	return n, nil
}

func (f *fakeClient) del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.values, key)
	delete(f.ttls, key)
	return nil
}

func (f *fakeClient) ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeClient) close() error { return nil }

func (f *fakeClient) ttlFor(suffix string) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, ttl := range f.ttls {
		if strings.HasSuffix(k, suffix) {
			return ttl, true
		}
	}
	return 0, false
}

func newTestStore(t *testing.T) (*Store, *fakeClient, *bytes.Buffer) {
	t.Helper()
	fc := newFakeClient()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	return newStore(fc, Config{Prefix: "test:"}, logger), fc, &logs
}

func signedToken(t *testing.T, exp *time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "01ARZ3NDEKTSV4RRFFQ69G5FAV"}
	if exp != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*exp)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return token
}

func TestStore_Blacklist_TTLMatchesRemainingLifetime(t *testing.T) {
	ctx := context.Background()
	s, fc, _ := newTestStore(t)
	exp := time.Now().Add(10 * time.Minute)
	token := signedToken(t, &exp)

	require.NoError(t, s.Blacklist(ctx, token))

	ttl, ok := fc.ttlFor(digest(token))
	require.True(t, ok, "blacklist entry expected")
	assert.InDelta(t, (10 * time.Minute).Seconds(), ttl.Seconds(), 2)
	assert.True(t, s.IsBlacklisted(ctx, token))
	assert.False(t, s.IsBlacklisted(ctx, signedToken(t, &exp)+"x"))
}

func TestStore_Blacklist_ExpiredTokenIsSkipped(t *testing.T) {
	s, fc, _ := newTestStore(t)
	exp := time.Now().Add(-time.Minute)
	token := signedToken(t, &exp)

	require.NoError(t, s.Blacklist(context.Background(), token))
	_, ok := fc.ttlFor(digest(token))
	assert.False(t, ok)
}

func TestStore_Blacklist_NoExpiryUsesDefault(t *testing.T) {
	s, fc, _ := newTestStore(t)

	for _, token := range []string{signedToken(t, nil), "not-a-jwt"} {
		require.NoError(t, s.Blacklist(context.Background(), token))
		ttl, ok := fc.ttlFor(digest(token))
		require.True(t, ok)
		assert.Equal(t, DefaultBlacklistTTL, ttl)
	}
}

func TestStore_Blacklist_KeyIsPrefixedDigest(t *testing.T) {
	s, fc, _ := newTestStore(t)
	token := signedToken(t, nil)
	require.NoError(t, s.Blacklist(context.Background(), token))

	fc.mu.Lock()
	defer fc.mu.Unlock()
	_, ok := fc.values["test:blacklist:"+digest(token)]
	assert.True(t, ok)
	for k := range fc.values {
		assert.NotContains(t, k, token, "raw token must not be stored")
	}
}

func TestStore_FailsOpenAndLogsOnce(t *testing.T) {
	ctx := context.Background()
	s, fc, logs := newTestStore(t)
	token := signedToken(t, nil)
	require.NoError(t, s.Blacklist(ctx, token))

	before := testutil.ToFloat64(StoreErrorsTotal.WithLabelValues("is_blacklisted"))
	fc.fail(errors.New("connection refused"))

	assert.False(t, s.IsBlacklisted(ctx, token), "errors report not blacklisted")
	assert.False(t, s.IsBlacklisted(ctx, token))
	assert.Error(t, s.Blacklist(ctx, token))
	assert.Equal(t, before+2, testutil.ToFloat64(StoreErrorsTotal.WithLabelValues("is_blacklisted")))
	assert.Equal(t, 1, strings.Count(logs.String(), "revocation store unavailable"))

	fc.fail(nil)
	assert.True(t, s.IsBlacklisted(ctx, token))
	assert.Equal(t, 1, strings.Count(logs.String(), "revocation store recovered"))
}

func TestStore_Counters(t *testing.T) {
	ctx := context.Background()
	s, fc, _ := newTestStore(t)

	n, err := s.Count(ctx, "login_failures:x")
	require.NoError(t, err)
	assert.Zero(t, n)

	for range 3 {
		_, err = s.Increment(ctx, "login_failures:x", time.Minute)
		require.NoError(t, err)
	}
	n, err = s.Count(ctx, "login_failures:x")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	ttl, _ := fc.ttlFor("login_failures:x")
	assert.Equal(t, time.Minute, ttl)

	require.NoError(t, s.Delete(ctx, "login_failures:x"))
	n, err = s.Count(ctx, "login_failures:x")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_GetSet(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	_, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	v, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), v)
}

func TestNew_Disabled(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, Config{Enabled: false}, nil)
	require.NoError(t, err)
	defer s.Close()

	token := signedToken(t, nil)
	require.NoError(t, s.Blacklist(ctx, token))
	assert.False(t, s.IsBlacklisted(ctx, token))
	n, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, s.Ping(ctx))
}

func TestStore_OpTimeoutApplied(t *testing.T) {
	s, _, _ := newTestStore(t)
	assert.Equal(t, DefaultOpTimeout, s.opTimeout)

	var deadline time.Time
	_ = s.do(context.Background(), "ping", func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	})
	assert.WithinDuration(t, time.Now().Add(DefaultOpTimeout), deadline, 100*time.Millisecond)
}
