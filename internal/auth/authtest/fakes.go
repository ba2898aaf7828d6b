// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

// Package authtest provides test doubles for auth collaborators.
package authtest

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/flickmate/flickmate/internal/auth"
)

// Mail is one message captured by RecordingMailer.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// RecordingMailer captures every message. Set Err to make sends fail.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []Mail
	Err  error
}

// Send records the message and returns m.Err.
func (m *RecordingMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, Mail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

// Sent returns a copy of the captured messages.
func (m *RecordingMailer) Sent() []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mail(nil), m.sent...)
}

// To returns the messages addressed to recipient.
func (m *RecordingMailer) To(recipient string) []Mail {
	var out []Mail
	for _, mail := range m.Sent() {
		if mail.To == recipient {
			out = append(out, mail)
		}
	}
	return out
}

var (
	otpPattern   = regexp.MustCompile(`\b(\d{6})\b`)
	tokenPattern = regexp.MustCompile(`token=([0-9a-f]{64})`)
)

// OTPCode extracts the six digit code from a verification email.
func OTPCode(body string) string {
	if m := otpPattern.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

// LinkToken extracts the token query parameter from a link email.
func LinkToken(body string) string {
	if m := tokenPattern.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

// RecordingRevoker captures blacklisted access tokens.
type RecordingRevoker struct {
	mu     sync.Mutex
	tokens []string
	Err    error
}

// Blacklist records token and returns r.Err.
func (r *RecordingRevoker) Blacklist(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, token)
	return r.Err
}

// Tokens returns the blacklisted tokens.
func (r *RecordingRevoker) Tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...)
}

// MemoryCounter is an AttemptCounter backed by a map. TTLs are ignored.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	Err    error
}

// NewMemoryCounter creates an empty MemoryCounter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

// Increment adds one to key.
func (c *MemoryCounter) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	c.counts[key]++
	return c.counts[key], nil
}

// Count returns the value of key.
func (c *MemoryCounter) Count(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	return c.counts[key], nil
}

// Delete removes key.
func (c *MemoryCounter) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	delete(c.counts, key)
	return nil
}

// MockProvider is a testify mock of auth.IdentityProvider.
type MockProvider struct {
	mock.Mock
}

// AuthCodeURL implements auth.IdentityProvider.
func (m *MockProvider) AuthCodeURL(state string) string {
	return m.Called(state).String(0)
}

// ExchangeCode implements auth.IdentityProvider.
func (m *MockProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

// FetchProfile implements auth.IdentityProvider.
func (m *MockProvider) FetchProfile(ctx context.Context, token string) (*auth.ProviderProfile, error) {
	args := m.Called(ctx, token)
	profile, _ := args.Get(0).(*auth.ProviderProfile)
	return profile, args.Error(1)
}

var (
	_ auth.Mailer           = (*RecordingMailer)(nil)
	_ auth.Revoker          = (*RecordingRevoker)(nil)
	_ auth.AttemptCounter   = (*MemoryCounter)(nil)
	_ auth.IdentityProvider = (*MockProvider)(nil)
)
