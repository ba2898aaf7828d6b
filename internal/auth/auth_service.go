// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/flickmate/flickmate/pkg/errutil"
)

// Version conflict retry policy.
const (
	versionRetries   = 3
	versionRetryBase = 5 * time.Millisecond
)

// DefaultMailTimeout bounds a single best-effort email send.
const DefaultMailTimeout = 30 * time.Second

// Mailer delivers HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Revoker blacklists access tokens before they expire.
type Revoker interface {
	Blacklist(ctx context.Context, accessToken string) error
}

// Links holds the frontend URLs placed in emails. The raw token is added as
// the "token" query parameter.
type Links struct {
	ResetPassword string
	ChangeEmail   string
}

// Session is an issued token pair.
type Session struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	User             PublicUser
}

// ServiceDeps are the collaborators of a Service.
type ServiceDeps struct {
	Directory Directory
	Tokens    *TokenCodec
	Passwords PasswordHasher
	// RefreshHashes hashes refresh token digests. Defaults to Passwords.
	RefreshHashes PasswordHasher
	Mailer        Mailer
	Revoker       Revoker
	// Limiter is optional; nil disables login throttling.
	Limiter *LoginLimiter
	// Provider is optional; nil disables OAuth login.
	Provider    IdentityProvider
	Links       Links
	Logger      *slog.Logger
	MailTimeout time.Duration
	Clock       func() time.Time
}

// Service runs the credential and session flows.
type Service struct {
	dir           Directory
	tokens        *TokenCodec
	passwords     PasswordHasher
	refreshHashes PasswordHasher
	mailer        Mailer
	revoker       Revoker
	limiter       *LoginLimiter
	provider      IdentityProvider
	links         Links
	logger        *slog.Logger
	mailTimeout   time.Duration
	now           func() time.Time

	// dummyHash is verified against for unknown emails so both paths cost
	// one hash comparison.
	dummyHash string

	// pending tracks best-effort work that outlives its request.
	pending sync.WaitGroup
}

// NewService creates a Service.
func NewService(deps ServiceDeps) (*Service, error) {
	switch {
	case deps.Directory == nil:
		return nil, oops.Errorf("directory is required")
	case deps.Tokens == nil:
		return nil, oops.Errorf("token codec is required")
	case deps.Passwords == nil:
		return nil, oops.Errorf("password hasher is required")
	case deps.Mailer == nil:
		return nil, oops.Errorf("mailer is required")
	case deps.Revoker == nil:
		return nil, oops.Errorf("revoker is required")
	}

	s := &Service{
		dir:           deps.Directory,
		tokens:        deps.Tokens,
		passwords:     deps.Passwords,
		refreshHashes: deps.RefreshHashes,
		mailer:        deps.Mailer,
		revoker:       deps.Revoker,
		limiter:       deps.Limiter,
		provider:      deps.Provider,
		links:         deps.Links,
		logger:        deps.Logger,
		mailTimeout:   deps.MailTimeout,
		now:           deps.Clock,
	}
	if s.refreshHashes == nil {
		s.refreshHashes = s.passwords
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.mailTimeout <= 0 {
		s.mailTimeout = DefaultMailTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}

	dummy, err := s.passwords.Hash("flickmate-timing-equalizer")
	if err != nil {
		return nil, oops.Code("AUTH_SERVICE_INIT_FAILED").
			With("operation", "hash dummy password").
			Wrap(err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Close waits for in-flight best-effort work: emails and reset requests.
func (s *Service) Close() {
	s.pending.Wait()
}

// Login authenticates with email and password and opens a new session.
// Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (_ *Session, err error) {
	defer func() { recordOperation("login", err) }()

	if err := s.limiter.Check(ctx, email); err != nil {
		return nil, err
	}

	account, lookupErr := s.dir.Accounts().GetByEmail(ctx, email)
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get account by email").
				Wrap(lookupErr)
		}
		// Still verify so unknown emails take as long as wrong passwords.
		s.passwords.Verify(password, s.dummyHash)
		s.limiter.RecordFailure(ctx, email)
		s.logger.InfoContext(ctx, "login failed", "reason", "unknown email")
		return nil, invalidCredentials()
	}

	if account.PasswordHash == nil {
		return nil, oops.Code(CodeUseOAuth).
			With("account_id", account.ID.String()).
			Errorf(msgUseOAuth)
	}
	verifiedHash := *account.PasswordHash
	if !s.passwords.Verify(password, verifiedHash) {
		s.limiter.RecordFailure(ctx, email)
		s.logger.InfoContext(ctx, "login failed",
			"reason", "password mismatch",
			"account_id", account.ID.String())
		return nil, invalidCredentials()
	}
	s.limiter.Reset(ctx, email)

	var upgraded *string
	if s.passwords.NeedsUpgrade(verifiedHash) {
		newHash, hashErr := s.passwords.Hash(password)
		if hashErr == nil {
			upgraded = &newHash
		} else {
			s.logger.WarnContext(ctx, "password hash upgrade failed",
				"account_id", account.ID.String(),
				"error", hashErr)
		}
	}

	session, err := s.openSession(ctx, account, func(a *Account) {
		if upgraded != nil && a.PasswordHash != nil && *a.PasswordHash == verifiedHash {
			a.PasswordHash = upgraded
		}
	})
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "open session").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return session, nil
}

// Refresh rotates a refresh token. A validly signed token that is no longer
// stored means it was already rotated out; every session of the account is
// revoked in response.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (_ *Session, err error) {
	defer func() { recordOperation("refresh", err) }()

	claims, err := s.tokens.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, err
	}

	accounts := s.dir.Accounts()
	account, err := accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUnauthorized).
				With("account_id", accountID.String()).
				Errorf("account not found")
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get account").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	session, newHash, err := s.issueSession(account.ID, account.Email)
	if err != nil {
		return nil, err
	}

	digest := tokenDigest(refreshToken)
	reused := false
	updated, err := s.updateAccount(ctx, accounts, account, func(a *Account) error {
		idx := s.matchRefreshHash(a.RefreshTokenHashes, digest)
		if idx < 0 {
			reused = true
			if len(a.RefreshTokenHashes) == 0 {
				return errNoChange
			}
			a.RefreshTokenHashes = nil
			return nil
		}
		reused = false
		a.RefreshTokenHashes = appendBounded(removeAt(a.RefreshTokenHashes, idx), newHash)
		return nil
	})
	if err != nil {
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "persist rotation").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	if reused {
		RefreshReuseTotal.Inc()
		s.logger.WarnContext(ctx, "refresh token reuse detected, all sessions revoked",
			"account_id", accountID.String())
		return nil, oops.Code(CodeSessionRevoked).
			With("account_id", accountID.String()).
			Errorf(msgSessionRevoked)
	}

	session.User = updated.Public()
	return session, nil
}

// Logout blacklists the access token and drops the refresh token's session.
// Unknown tokens are ignored, so repeated logouts succeed.
func (s *Service) Logout(ctx context.Context, accountID ulid.ULID, refreshToken, accessToken string) (err error) {
	defer func() { recordOperation("logout", err) }()

	if accessToken != "" {
		if blErr := s.revoker.Blacklist(ctx, accessToken); blErr != nil {
			s.logger.WarnContext(ctx, "blacklist access token failed",
				"account_id", accountID.String(),
				"error", blErr)
		}
	}
	if refreshToken == "" {
		return nil
	}

	accounts := s.dir.Accounts()
	account, err := accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "get account").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	digest := tokenDigest(refreshToken)
	_, err = s.updateAccount(ctx, accounts, account, func(a *Account) error {
		idx := s.matchRefreshHash(a.RefreshTokenHashes, digest)
		if idx < 0 {
			return errNoChange
		}
		a.RefreshTokenHashes = removeAt(a.RefreshTokenHashes, idx)
		return nil
	})
	if err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "remove session").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}

// ChangePassword replaces the password of a password account. Every existing
// session is dropped and the caller gets a fresh one.
func (s *Service) ChangePassword(ctx context.Context, accountID ulid.ULID, currentPassword, newPassword string) (_ *Session, err error) {
	defer func() { recordOperation("change_password", err) }()

	accounts := s.dir.Accounts()
	account, err := accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).
				With("account_id", accountID.String()).
				Errorf("account not found")
		}
		return nil, oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "get account").
			Wrap(err)
	}
	if account.PasswordHash == nil {
		return nil, oops.Code(CodeUseOAuth).
			With("account_id", accountID.String()).
			Errorf(msgUseOAuth)
	}
	verifiedHash := *account.PasswordHash
	if !s.passwords.Verify(currentPassword, verifiedHash) {
		return nil, oops.Code(CodeInvalidCredentials).
			With("account_id", accountID.String()).
			Errorf("current password is incorrect")
	}

	newHash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	session, refreshHash, err := s.issueSession(account.ID, account.Email)
	if err != nil {
		return nil, err
	}

	updated, err := s.updateAccount(ctx, accounts, account, func(a *Account) error {
		// A concurrent change already replaced the password we checked.
		if a.PasswordHash == nil || *a.PasswordHash != verifiedHash {
			return oops.Code(CodeInvalidCredentials).
				With("account_id", accountID.String()).
				Errorf("current password is incorrect")
		}
		a.PasswordHash = &newHash
		a.RefreshTokenHashes = []string{refreshHash}
		return nil
	})
	if err != nil {
		if KindOf(err) == KindInvalidCredentials {
			return nil, err
		}
		return nil, oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "persist password").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password changed", "account_id", accountID.String())
	session.User = updated.Public()
	return session, nil
}

// CurrentUser returns the public view of an account.
func (s *Service) CurrentUser(ctx context.Context, accountID ulid.ULID) (*PublicUser, error) {
	account, err := s.dir.Accounts().GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).
				With("account_id", accountID.String()).
				Errorf("account not found")
		}
		return nil, oops.Code("AUTH_CURRENT_USER_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	user := account.Public()
	return &user, nil
}

// openSession issues a token pair for account and appends its refresh hash,
// evicting the oldest session past MaxSessions. extra, when set, applies
// further changes in the same write.
func (s *Service) openSession(ctx context.Context, account *Account, extra func(*Account)) (*Session, error) {
	session, refreshHash, err := s.issueSession(account.ID, account.Email)
	if err != nil {
		return nil, err
	}
	updated, err := s.updateAccount(ctx, s.dir.Accounts(), account, func(a *Account) error {
		a.RefreshTokenHashes = appendBounded(a.RefreshTokenHashes, refreshHash)
		if extra != nil {
			extra(a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	session.User = updated.Public()
	return session, nil
}

// issueSession signs an access/refresh pair and hashes the refresh token for
// storage. The returned session has no User set.
func (s *Service) issueSession(accountID ulid.ULID, email string) (*Session, string, error) {
	claims := SubjectClaims(accountID, email)
	access, accessExp, err := s.tokens.Sign(claims, TokenAccess, 0)
	if err != nil {
		return nil, "", err
	}
	refresh, refreshExp, err := s.tokens.Sign(claims, TokenRefresh, 0)
	if err != nil {
		return nil, "", err
	}
	refreshHash, err := s.refreshHashes.Hash(tokenDigest(refresh))
	if err != nil {
		return nil, "", oops.Code("AUTH_SESSION_ISSUE_FAILED").
			With("operation", "hash refresh token").
			Wrap(err)
	}
	return &Session{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, refreshHash, nil
}

func (s *Service) matchRefreshHash(hashes []string, digest string) int {
	for i, h := range hashes {
		if s.refreshHashes.Verify(digest, h) {
			return i
		}
	}
	return -1
}

// errNoChange lets an updateAccount mutation skip the write.
var errNoChange = errors.New("no change")

// updateAccount applies mutate to account and persists it. On a version
// conflict the account is reloaded and mutate runs again.
func (s *Service) updateAccount(ctx context.Context, repo AccountRepository, account *Account, mutate func(*Account) error) (*Account, error) {
	id := account.ID
	current := account
	err := s.retryOnConflict(ctx, func(ctx context.Context) error {
		if current == nil {
			reloaded, err := repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			current = reloaded
		}
		if err := mutate(current); err != nil {
			return err
		}
		if err := repo.Update(ctx, current); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				current = nil
			}
			return err
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return current, nil
	}
	if err != nil {
		return nil, err
	}
	return current, nil
}

// retryOnConflict reruns fn while it fails with ErrVersionConflict. A conflict
// that outlasts the retries is returned as is and classifies as KindInternal.
func (s *Service) retryOnConflict(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(versionRetries, retry.NewExponential(versionRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && errors.Is(err, ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, ErrVersionConflict) {
		return oops.With("attempts", versionRetries+1).Wrap(err)
	}
	return err
}

// sendAsync renders and mails a best-effort email on a tracked goroutine.
// The send outlives the request but not mailTimeout.
func (s *Service) sendAsync(ctx context.Context, to string, tmpl emailTemplate, data any) {
	body, err := tmpl.render(data)
	if err != nil {
		errutil.LogError(s.logger, "render email failed", err)
		return
	}

	s.detach(ctx, func(ctx context.Context) {
		if err := s.mailer.Send(ctx, to, tmpl.subject, body); err != nil {
			errutil.LogError(s.logger, "send email failed",
				oops.With("template", tmpl.body.Name()).Wrap(err))
		}
	})
}

// detach runs fn on a tracked goroutine with a context that keeps the values
// of ctx, ignores its cancellation and expires after mailTimeout.
func (s *Service) detach(ctx context.Context, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(detached, s.mailTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// appendBounded appends h, evicting the oldest entries so the result holds at
// most MaxSessions hashes.
func appendBounded(hashes []string, h string) []string {
	if len(hashes) >= MaxSessions {
		hashes = hashes[len(hashes)-(MaxSessions-1):]
	}
	out := make([]string, 0, len(hashes)+1)
	out = append(out, hashes...)
	return append(out, h)
}

func removeAt(hashes []string, i int) []string {
	out := make([]string, 0, len(hashes)-1)
	out = append(out, hashes[:i]...)
	return append(out, hashes[i+1:]...)
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf(msgInvalidCredentials)
}
