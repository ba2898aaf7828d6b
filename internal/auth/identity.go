// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Identity is the caller attached to a request. The zero value is an
// unauthenticated caller.
type Identity struct {
	AccountID     ulid.ULID
	Email         string
	Token         string
	ExpiresAt     time.Time
	Authenticated bool
}

// Owns reports whether the identity is authenticated as accountID.
func (i Identity) Owns(accountID ulid.ULID) bool {
	return i.Authenticated && i.AccountID == accountID
}
