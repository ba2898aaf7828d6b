// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package memory

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/flickmate/flickmate/internal/auth"
)

type accountRepo struct{ v view }

func (r accountRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	var out *auth.Account
	err := r.v.with(func(st *state, _ time.Time) error {
		a, ok := st.accounts[id]
		if !ok {
			return accountNotFound("id", id.String())
		}
		out = copyAccount(a)
		return nil
	})
	return out, err
}

func (r accountRepo) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	return r.find(func(a *auth.Account) bool { return a.Email == email }, "email", email)
}

func (r accountRepo) GetByProviderID(_ context.Context, providerID string) (*auth.Account, error) {
	return r.find(func(a *auth.Account) bool {
		return a.ProviderID != nil && *a.ProviderID == providerID
	}, "provider_id", providerID)
}

func (r accountRepo) find(match func(*auth.Account) bool, key, value string) (*auth.Account, error) {
	var out *auth.Account
	err := r.v.with(func(st *state, _ time.Time) error {
		for _, a := range st.accounts {
			if match(a) {
				out = copyAccount(a)
				return nil
			}
		}
		return accountNotFound(key, value)
	})
	return out, err
}

func (r accountRepo) Create(_ context.Context, account *auth.Account) error {
	return r.v.with(func(st *state, _ time.Time) error {
		if _, exists := st.accounts[account.ID]; exists {
			return oops.Code("ACCOUNT_DUPLICATE").With("id", account.ID.String()).Wrap(auth.ErrDuplicate)
		}
		if err := checkUnique(st, account); err != nil {
			return err
		}
		st.accounts[account.ID] = copyAccount(account)
		return nil
	})
}

func (r accountRepo) Update(_ context.Context, account *auth.Account) error {
	return r.v.with(func(st *state, now time.Time) error {
		stored, ok := st.accounts[account.ID]
		if !ok {
			return accountNotFound("id", account.ID.String())
		}
		if stored.Version != account.Version {
			return oops.Code("ACCOUNT_VERSION_CONFLICT").
				With("id", account.ID.String()).
				With("expected_version", account.Version).
				With("stored_version", stored.Version).
				Wrap(auth.ErrVersionConflict)
		}
		if err := checkUnique(st, account); err != nil {
			return err
		}
		account.Version++
		account.UpdatedAt = now
		st.accounts[account.ID] = copyAccount(account)
		return nil
	})
}

// checkUnique rejects an email or provider id held by another account.
func checkUnique(st *state, account *auth.Account) error {
	for id, other := range st.accounts {
		if id == account.ID {
			continue
		}
		if other.Email == account.Email {
			return oops.Code("ACCOUNT_DUPLICATE").With("field", "email").Wrap(auth.ErrDuplicate)
		}
		if account.ProviderID != nil && other.ProviderID != nil && *other.ProviderID == *account.ProviderID {
			return oops.Code("ACCOUNT_DUPLICATE").With("field", "provider_id").Wrap(auth.ErrDuplicate)
		}
	}
	return nil
}

type resetRepo struct{ v view }

func (r resetRepo) Create(_ context.Context, reset *auth.PasswordReset) error {
	return r.v.with(func(st *state, _ time.Time) error {
		for _, existing := range st.resets {
			if existing.TokenHash == reset.TokenHash {
				return oops.Code("RESET_DUPLICATE").Wrap(auth.ErrDuplicate)
			}
		}
		c := *reset
		st.resets[reset.ID] = &c
		return nil
	})
}

func (r resetRepo) GetByTokenHash(_ context.Context, tokenHash string) (*auth.PasswordReset, error) {
	var out *auth.PasswordReset
	err := r.v.with(func(st *state, _ time.Time) error {
		for _, reset := range st.resets {
			if reset.TokenHash == tokenHash {
				c := *reset
				out = &c
				return nil
			}
		}
		return oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	})
	return out, err
}

func (r resetRepo) Delete(_ context.Context, id ulid.ULID) error {
	return r.v.with(func(st *state, _ time.Time) error {
		if _, ok := st.resets[id]; !ok {
			return oops.Code("RESET_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
		}
		delete(st.resets, id)
		return nil
	})
}

func (r resetRepo) DeleteByAccount(_ context.Context, accountID ulid.ULID) error {
	return r.v.with(func(st *state, _ time.Time) error {
		for id, reset := range st.resets {
			if reset.AccountID == accountID {
				delete(st.resets, id)
			}
		}
		return nil
	})
}

func (r resetRepo) DeleteExpired(_ context.Context) (int64, error) {
	var n int64
	err := r.v.with(func(st *state, now time.Time) error {
		for id, reset := range st.resets {
			if reset.IsExpiredAt(now) {
				delete(st.resets, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

type changeRepo struct{ v view }

func (r changeRepo) Upsert(_ context.Context, req *auth.EmailChangeRequest) error {
	return r.v.with(func(st *state, _ time.Time) error {
		for id, existing := range st.changes {
			if existing.AccountID == req.AccountID {
				delete(st.changes, id)
			}
		}
		c := *req
		st.changes[req.ID] = &c
		return nil
	})
}

func (r changeRepo) GetByTokenHash(_ context.Context, tokenHash string) (*auth.EmailChangeRequest, error) {
	var out *auth.EmailChangeRequest
	err := r.v.with(func(st *state, _ time.Time) error {
		for _, req := range st.changes {
			if req.TokenHash == tokenHash {
				c := *req
				out = &c
				return nil
			}
		}
		return oops.Code("EMAIL_CHANGE_NOT_FOUND").Wrap(auth.ErrNotFound)
	})
	return out, err
}

func (r changeRepo) Delete(_ context.Context, id ulid.ULID) error {
	return r.v.with(func(st *state, _ time.Time) error {
		if _, ok := st.changes[id]; !ok {
			return oops.Code("EMAIL_CHANGE_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
		}
		delete(st.changes, id)
		return nil
	})
}

func (r changeRepo) DeleteExpired(_ context.Context) (int64, error) {
	var n int64
	err := r.v.with(func(st *state, now time.Time) error {
		for id, req := range st.changes {
			if req.IsExpiredAt(now) {
				delete(st.changes, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
