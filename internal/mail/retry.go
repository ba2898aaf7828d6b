// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package mail

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Retry defaults.
const (
	DefaultAttempts = 3
	DefaultBackoff  = 200 * time.Millisecond
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// RetryingSender retries a Sender with exponential backoff.
type RetryingSender struct {
	next     Sender
	attempts uint64
	base     time.Duration
	logger   *slog.Logger
}

// RetryOption customizes a RetryingSender.
type RetryOption func(*RetryingSender)

// WithAttempts sets the total number of tries, including the first.
func WithAttempts(n uint64) RetryOption {
	return func(r *RetryingSender) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithBackoff sets the first retry delay. Later delays double.
func WithBackoff(d time.Duration) RetryOption {
	return func(r *RetryingSender) {
		if d > 0 {
			r.base = d
		}
	}
}

// NewRetryingSender wraps next.
func NewRetryingSender(next Sender, logger *slog.Logger, opts ...RetryOption) *RetryingSender {
	if logger == nil {
		logger = slog.Default()
	}
	r := &RetryingSender{
		next:     next,
		attempts: DefaultAttempts,
		base:     DefaultBackoff,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send tries next until it succeeds, the attempts run out, or ctx ends.
func (r *RetryingSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	attempt := 0
	backoff := retry.WithMaxRetries(r.attempts-1, retry.NewExponential(r.base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := r.next.Send(ctx, to, subject, htmlBody); err != nil {
			r.logger.DebugContext(ctx, "mail delivery attempt failed",
				"attempt", attempt,
				"subject", subject,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.With("attempts", attempt).Wrap(err)
	}
	return nil
}
