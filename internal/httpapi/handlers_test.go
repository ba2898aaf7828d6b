// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package httpapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flickmate/flickmate/internal/auth"
	"github.com/flickmate/flickmate/internal/auth/authtest"
	"github.com/flickmate/flickmate/internal/httpapi"
)

func login(t *testing.T, a *api, email, password string) *response {
	t.Helper()
	return a.do(t, fiber.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
}

func TestLogin(t *testing.T) {
	a := newAPI(t)
	a.signUp(t, "Ada", "ada@example.com", "correct horse")

	t.Run("success sets refresh cookie", func(t *testing.T) {
		resp := login(t, a, "ada@example.com", "correct horse")
		require.Equal(t, fiber.StatusOK, resp.Status, resp.RawBody)
		assert.Equal(t, "success", resp.Body.Status)
		assert.Equal(t, fiber.StatusOK, resp.Body.StatusCode)

		data := resp.data(t)
		assert.NotEmpty(t, data["accessToken"])
		user := data["user"].(map[string]any)
		assert.Equal(t, "ada@example.com", user["email"])
		assert.NotContains(t, resp.RawBody, "refreshToken", "refresh token only travels in the cookie")

		ck := resp.cookie(httpapi.RefreshCookie)
		require.NotNil(t, ck)
		assert.NotEmpty(t, ck.Value)
		assert.True(t, ck.HttpOnly)
		assert.False(t, ck.Secure)
		assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
		assert.Equal(t, "/", ck.Path)
		assert.Equal(t, int(auth.DefaultRefreshTTL.Seconds()), ck.MaxAge)
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		wrong := login(t, a, "ada@example.com", "nope")
		unknown := login(t, a, "nobody@example.com", "nope")
		assert.Equal(t, fiber.StatusUnauthorized, wrong.Status)
		assert.Equal(t, wrong.Status, unknown.Status)
		assert.Equal(t, wrong.Body, unknown.Body)
		assert.Equal(t, "error", wrong.Body.Status)
		assert.Equal(t, "invalid email or password", wrong.Body.Message)
		assert.Nil(t, wrong.cookie(httpapi.RefreshCookie))
	})

	t.Run("validation", func(t *testing.T) {
		resp := login(t, a, "", "x")
		assert.Equal(t, fiber.StatusBadRequest, resp.Status)
		assert.Equal(t, "email is required", resp.Body.Message)

		resp = login(t, a, "not-an-email", "x")
		assert.Equal(t, fiber.StatusBadRequest, resp.Status)
		assert.Equal(t, "email must be a valid email", resp.Body.Message)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := a.do(t, fiber.MethodPost, "/auth/login", `{"email":`)
		assert.Equal(t, fiber.StatusBadRequest, resp.Status)
		assert.Equal(t, "invalid request body", resp.Body.Message)
	})
}

func TestProductionCookies(t *testing.T) {
	a := newAPI(t, withEnvironment(httpapi.EnvProduction))
	resp := a.signUp(t, "Ada", "ada@example.com", "correct horse")

	ck := resp.cookie(httpapi.RefreshCookie)
	require.NotNil(t, ck)
	assert.True(t, ck.Secure)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, http.SameSiteNoneMode, ck.SameSite)
}

func TestRegister_Validation(t *testing.T) {
	a := newAPI(t)
	resp := a.do(t, fiber.MethodPost, "/auth/register", map[string]any{
		"otpToken": "t",
		"otp":      "12ab",
		"user":     map[string]string{"name": "", "email": "ada@example.com", "password": "pw"},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.Status)
	assert.Contains(t, resp.Body.Message, "otp must be 6 characters")
	assert.Contains(t, resp.Body.Message, "user.name is required")
}

func TestVerifyOTP(t *testing.T) {
	a := newAPI(t)
	sent := a.do(t, fiber.MethodPost, "/auth/send-otp", map[string]string{"name": "Ada", "email": "ada@example.com"})
	require.Equal(t, fiber.StatusOK, sent.Status)
	token := sent.data(t)["token"].(string)
	code := authtest.OTPCode(a.mailer.To("ada@example.com")[0].Body)

	ok := a.do(t, fiber.MethodPost, "/auth/verify-otp", map[string]string{"token": token, "email": "ada@example.com", "otp": code})
	assert.Equal(t, fiber.StatusOK, ok.Status)
	assert.Equal(t, true, ok.data(t)["valid"])

	bad := a.do(t, fiber.MethodPost, "/auth/verify-otp", map[string]string{"token": token, "email": "eve@example.com", "otp": code})
	assert.Equal(t, fiber.StatusBadRequest, bad.Status)
	assert.Equal(t, false, bad.data(t)["valid"])
}

func TestRefresh(t *testing.T) {
	a := newAPI(t)
	first := a.signUp(t, "Ada", "ada@example.com", "correct horse")
	original := first.cookie(httpapi.RefreshCookie).Value

	t.Run("missing cookie", func(t *testing.T) {
		resp := a.do(t, fiber.MethodPost, "/auth/refresh-token", nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.Status)
		assert.Equal(t, "refresh token is required", resp.Body.Message)
	})

	rotated := a.do(t, fiber.MethodPost, "/auth/refresh-token", nil, cookie(httpapi.RefreshCookie, original))
	require.Equal(t, fiber.StatusOK, rotated.Status, rotated.RawBody)
	next := rotated.cookie(httpapi.RefreshCookie)
	require.NotNil(t, next)
	assert.NotEqual(t, original, next.Value)

	reused := a.do(t, fiber.MethodPost, "/auth/refresh-token", nil, cookie(httpapi.RefreshCookie, original))
	assert.Equal(t, fiber.StatusUnauthorized, reused.Status)
	assert.Equal(t, "refresh token revoked, all sessions invalidated", reused.Body.Message)
	cleared := reused.cookie(httpapi.RefreshCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	after := a.do(t, fiber.MethodPost, "/auth/refresh-token", nil, cookie(httpapi.RefreshCookie, next.Value))
	assert.Equal(t, fiber.StatusUnauthorized, after.Status, "reuse revokes the rotated token too")
}

func TestForgetPassword_SameAnswerForUnknownEmail(t *testing.T) {
	a := newAPI(t)
	a.signUp(t, "Ada", "ada@example.com", "correct horse")

	known := a.do(t, fiber.MethodPost, "/auth/forget-password", map[string]string{"email": "ada@example.com"})
	unknown := a.do(t, fiber.MethodPost, "/auth/forget-password", map[string]string{"email": "nobody@example.com"})

	assert.Equal(t, fiber.StatusOK, known.Status)
	assert.Equal(t, known.Status, unknown.Status)
	assert.Equal(t, known.RawBody, unknown.RawBody)
	assert.Equal(t, auth.ForgetPasswordMessage, known.Body.Message)

	a.svc.Close()
	var link string
	for _, m := range a.mailer.To("ada@example.com") {
		if token := authtest.LinkToken(m.Body); token != "" {
			link = token
		}
	}
	assert.NotEmpty(t, link, "reset link expected")
	assert.Empty(t, a.mailer.To("nobody@example.com"))
}

func TestLogout_RevokesAccessToken(t *testing.T) {
	a := newAPI(t)
	signed := a.signUp(t, "Ada", "ada@example.com", "correct horse")
	token := accessToken(t, signed)
	refresh := signed.cookie(httpapi.RefreshCookie).Value

	resp := a.do(t, fiber.MethodPost, "/auth/logout", nil, bearer(token), cookie(httpapi.RefreshCookie, refresh))
	require.Equal(t, fiber.StatusOK, resp.Status, resp.RawBody)
	cleared := resp.cookie(httpapi.RefreshCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	again := a.do(t, fiber.MethodPost, "/auth/change-password",
		map[string]string{"currentPassword": "correct horse", "newPassword": "battery staple"},
		bearer(token))
	assert.Equal(t, fiber.StatusUnauthorized, again.Status)
	assert.Equal(t, "token revoked", again.Body.Message)

	stale := a.do(t, fiber.MethodPost, "/auth/refresh-token", nil, cookie(httpapi.RefreshCookie, refresh))
	assert.Equal(t, fiber.StatusUnauthorized, stale.Status)
}

func TestRequiredRoutesRejectAnonymous(t *testing.T) {
	a := newAPI(t)
	for _, path := range []string{"/auth/change-password", "/auth/change-email-request", "/auth/logout"} {
		t.Run(path, func(t *testing.T) {
			resp := a.do(t, fiber.MethodPost, path, map[string]string{})
			assert.Equal(t, fiber.StatusUnauthorized, resp.Status)
			assert.Equal(t, "error", resp.Body.Status)
			assert.Equal(t, fiber.StatusUnauthorized, resp.Body.StatusCode)
		})
	}
}

func TestMe(t *testing.T) {
	a := newAPI(t)
	token := accessToken(t, a.signUp(t, "Ada", "ada@example.com", "correct horse"))

	anon := a.do(t, fiber.MethodGet, "/auth/me", nil)
	assert.Equal(t, fiber.StatusOK, anon.Status)
	assert.Equal(t, false, anon.data(t)["isAuthenticated"])

	broken := a.do(t, fiber.MethodGet, "/auth/me", nil, bearer("garbage"))
	assert.Equal(t, fiber.StatusOK, broken.Status)
	assert.Equal(t, false, broken.data(t)["isAuthenticated"])

	me := a.do(t, fiber.MethodGet, "/auth/me", nil, bearer(token))
	require.Equal(t, fiber.StatusOK, me.Status)
	data := me.data(t)
	assert.Equal(t, true, data["isAuthenticated"])
	assert.Equal(t, "Ada", data["user"].(map[string]any)["name"])
}

func TestChangePassword_IssuesNewSession(t *testing.T) {
	a := newAPI(t)
	token := accessToken(t, a.signUp(t, "Ada", "ada@example.com", "correct horse"))

	resp := a.do(t, fiber.MethodPost, "/auth/change-password",
		map[string]string{"currentPassword": "correct horse", "newPassword": "battery staple"},
		bearer(token))
	require.Equal(t, fiber.StatusOK, resp.Status, resp.RawBody)
	assert.NotNil(t, resp.cookie(httpapi.RefreshCookie))

	assert.Equal(t, fiber.StatusUnauthorized, login(t, a, "ada@example.com", "correct horse").Status)
	assert.Equal(t, fiber.StatusOK, login(t, a, "ada@example.com", "battery staple").Status)
}

func TestOAuth(t *testing.T) {
	a := newAPI(t)
	a.provider.On("AuthCodeURL", mock.AnythingOfType("string")).Return("https://accounts.example/consent")

	start := a.do(t, fiber.MethodGet, "/auth/oauth/start", nil)
	require.Equal(t, fiber.StatusFound, start.Status)
	assert.Equal(t, "https://accounts.example/consent", start.Location)
	state := start.cookie(httpapi.StateCookie)
	require.NotNil(t, state)
	assert.Len(t, state.Value, 2*auth.OAuthStateBytes)
	assert.True(t, state.HttpOnly)
	assert.Equal(t, 15*60, state.MaxAge)

	t.Run("state mismatch", func(t *testing.T) {
		resp := a.do(t, fiber.MethodGet, "/auth/oauth/callback?state=forged&code=abc", nil,
			cookie(httpapi.StateCookie, state.Value))
		require.Equal(t, fiber.StatusFound, resp.Status)
		u, err := url.Parse(resp.Location)
		require.NoError(t, err)
		assert.Equal(t, "forbidden", u.Query().Get("oauthError"))
		assert.Nil(t, resp.cookie(httpapi.RefreshCookie))
		cleared := resp.cookie(httpapi.StateCookie)
		require.NotNil(t, cleared)
		assert.Empty(t, cleared.Value)
	})

	t.Run("success", func(t *testing.T) {
		a.provider.On("ExchangeCode", mock.Anything, "abc").Return("provider-token", nil).Once()
		a.provider.On("FetchProfile", mock.Anything, "provider-token").Return(&auth.ProviderProfile{
			ID:            "g-1",
			Email:         "grace@example.com",
			EmailVerified: true,
			Name:          "Grace",
		}, nil).Once()

		resp := a.do(t, fiber.MethodGet, "/auth/oauth/callback?state="+state.Value+"&code=abc", nil,
			cookie(httpapi.StateCookie, state.Value))
		require.Equal(t, fiber.StatusFound, resp.Status)
		assert.Equal(t, frontendURL, resp.Location)
		ck := resp.cookie(httpapi.RefreshCookie)
		require.NotNil(t, ck)
		assert.NotEmpty(t, ck.Value)
		a.provider.AssertExpectations(t)
	})

	t.Run("upstream failure", func(t *testing.T) {
		a.provider.On("ExchangeCode", mock.Anything, "stale").Return("", errors.New("invalid_grant")).Once()
		resp := a.do(t, fiber.MethodGet, "/auth/oauth/callback?state="+state.Value+"&code=stale", nil,
			cookie(httpapi.StateCookie, state.Value))
		require.Equal(t, fiber.StatusFound, resp.Status)
		assert.True(t, strings.HasSuffix(resp.Location, "oauthError=upstream"), resp.Location)
	})
}

// failingSessions fails every Login with an internal error.
type failingSessions struct {
	httpapi.Sessions
}

func (failingSessions) Login(context.Context, string, string) (*auth.Session, error) {
	return nil, errors.New("connection reset by peer")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	a := newAPI(t, withSessions(failingSessions{}))

	resp := login(t, a, "ada@example.com", "pw")
	assert.Equal(t, fiber.StatusInternalServerError, resp.Status)
	assert.Equal(t, "internal server error", resp.Body.Message)
	assert.NotContains(t, resp.RawBody, "connection reset")
	assert.Contains(t, a.logs.String(), "connection reset by peer")
	assert.Contains(t, a.logs.String(), `"path":"/auth/login"`)
}

func TestUnknownRoute(t *testing.T) {
	a := newAPI(t)
	resp := a.do(t, fiber.MethodGet, "/auth/nothing", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.Status)
	assert.Equal(t, "error", resp.Body.Status)
}

func TestMetricsRecorded(t *testing.T) {
	a := newAPI(t)
	login(t, a, "nobody@example.com", "pw")
	login(t, a, "nobody@example.com", "pw")

	assert.Equal(t, float64(2), testutil.ToFloat64(
		a.metrics.RequestsTotal.WithLabelValues(fiber.MethodPost, "/auth/login", "401")))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{auth.CodeInvalidCredentials, fiber.StatusUnauthorized},
		{auth.CodeUseOAuth, fiber.StatusBadRequest},
		{auth.CodeTokenExpired, fiber.StatusUnauthorized},
		{auth.CodeConflict, fiber.StatusConflict},
		{auth.CodeForbidden, fiber.StatusForbidden},
		{auth.CodeNotFound, fiber.StatusNotFound},
		{auth.CodeTooManyAttempts, fiber.StatusTooManyRequests},
		{auth.CodeUpstreamFailed, fiber.StatusBadGateway},
		{"SOMETHING_ELSE", fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, httpapi.StatusFor(oopsCode(tt.code)))
		})
	}
	assert.Equal(t, fiber.StatusNotFound, httpapi.StatusFor(fiber.ErrNotFound))
}

func oopsCode(code string) error {
	return oops.Code(code).Errorf("test error")
}
