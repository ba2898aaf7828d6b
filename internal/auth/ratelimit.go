// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Rate limiting configuration.
const (
	// LockoutDuration is how long failed attempts are remembered.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of failures that blocks further attempts.
	LockoutThreshold = 7
)

// AttemptCounter is a TTL-bounded counter store.
type AttemptCounter interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Count(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

// LoginLimiter blocks password attempts for an email after repeated failures.
// Unknown emails are counted the same way as real ones. Counter errors never
// block a login. A nil *LoginLimiter allows everything.
type LoginLimiter struct {
	counter   AttemptCounter
	threshold int64
	window    time.Duration
	logger    *slog.Logger
}

// NewLoginLimiter creates a LoginLimiter with the default threshold and window.
func NewLoginLimiter(counter AttemptCounter, logger *slog.Logger) (*LoginLimiter, error) {
	if counter == nil {
		return nil, oops.Errorf("attempt counter is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginLimiter{
		counter:   counter,
		threshold: LockoutThreshold,
		window:    LockoutDuration,
		logger:    logger,
	}, nil
}

// Check fails with AUTH_TOO_MANY_ATTEMPTS once the email reached the threshold.
func (l *LoginLimiter) Check(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	n, err := l.counter.Count(ctx, failureKey(email))
	if err != nil {
		l.logger.DebugContext(ctx, "login limiter count failed", "error", err)
		return nil
	}
	if n >= l.threshold {
		return oops.Code(CodeTooManyAttempts).
			With("failures", n).
			Errorf("too many failed attempts, try again later")
	}
	return nil
}

// RecordFailure counts one failed attempt.
func (l *LoginLimiter) RecordFailure(ctx context.Context, email string) {
	if l == nil {
		return
	}
	if _, err := l.counter.Increment(ctx, failureKey(email), l.window); err != nil {
		l.logger.DebugContext(ctx, "login limiter increment failed", "error", err)
	}
}

// Reset clears the failure count after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, email string) {
	if l == nil {
		return
	}
	if err := l.counter.Delete(ctx, failureKey(email)); err != nil {
		l.logger.DebugContext(ctx, "login limiter reset failed", "error", err)
	}
}

// failureKey keeps raw emails out of the key space.
func failureKey(email string) string {
	sum := sha256.Sum256([]byte(email))
	return "login_failures:" + hex.EncodeToString(sum[:])
}
