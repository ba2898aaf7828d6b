// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/flickmate/flickmate/internal/auth"
	"github.com/flickmate/flickmate/internal/auth/authtest"
	"github.com/flickmate/flickmate/internal/auth/memory"
	"github.com/flickmate/flickmate/internal/gateway"
	"github.com/flickmate/flickmate/internal/httpapi"
	"github.com/flickmate/flickmate/internal/observability"
)

const frontendURL = "https://app.example/oauth/done"

// testingT is satisfied by *testing.T and GinkgoT().
type testingT interface {
	require.TestingT
	Helper()
	Cleanup(func())
}

// revokedSet answers blacklist checks from the tokens the service revoked.
type revokedSet struct {
	revoker *authtest.RecordingRevoker
}

func (r revokedSet) IsBlacklisted(_ context.Context, token string) bool {
	return slices.Contains(r.revoker.Tokens(), token)
}

type api struct {
	app      *fiber.App
	svc      *auth.Service
	dir      *memory.Directory
	mailer   *authtest.RecordingMailer
	revoker  *authtest.RecordingRevoker
	provider *authtest.MockProvider
	metrics  *observability.Metrics
	logs     *bytes.Buffer
}

type apiOption func(*httpapi.Config, *httpapi.Deps)

func withEnvironment(env string) apiOption {
	return func(c *httpapi.Config, _ *httpapi.Deps) { c.Environment = env }
}

func withSessions(s httpapi.Sessions) apiOption {
	return func(_ *httpapi.Config, d *httpapi.Deps) { d.Sessions = s }
}

func newAPI(t testingT, opts ...apiOption) *api {
	t.Helper()

	hasher, err := auth.NewBcryptHasher(auth.MinBcryptCost)
	require.NoError(t, err)
	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  "api-access",
		RefreshSecret: "api-refresh",
		PurposeSecret: "api-purpose",
	})
	require.NoError(t, err)

	a := &api{
		dir:      memory.New(),
		mailer:   &authtest.RecordingMailer{},
		revoker:  &authtest.RecordingRevoker{},
		provider: &authtest.MockProvider{},
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
		logs:     &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(a.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a.svc, err = auth.NewService(auth.ServiceDeps{
		Directory: a.dir,
		Tokens:    codec,
		Passwords: hasher,
		Mailer:    a.mailer,
		Revoker:   a.revoker,
		Provider:  a.provider,
		Links: auth.Links{
			ResetPassword: "https://app.example/reset-password",
			ChangeEmail:   "https://app.example/change-email",
		},
		Logger:      logger,
		MailTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(a.svc.Close)

	authenticator, err := gateway.NewAuthenticator(codec, revokedSet{a.revoker},
		gateway.Options{RevocationChecking: true}, logger)
	require.NoError(t, err)

	cfg := httpapi.Config{Environment: httpapi.EnvDevelopment, FrontendURL: frontendURL}
	deps := httpapi.Deps{Sessions: a.svc, Gateway: authenticator, Metrics: a.metrics, Logger: logger}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	srv, err := httpapi.New(cfg, deps)
	require.NoError(t, err)
	a.app = srv.App()
	return a
}

type reqOption func(*http.Request)

func bearer(token string) reqOption {
	return func(r *http.Request) { r.Header.Set(fiber.HeaderAuthorization, "Bearer "+token) }
}

func cookie(name, value string) reqOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

type response struct {
	Status   int
	Body     responseBody
	Cookies  []*http.Cookie
	Location string
	RawBody  string
}

type responseBody struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

func (r *response) cookie(name string) *http.Cookie {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// data decodes the envelope data into a map.
func (r *response) data(t testingT) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(r.Body.Data, &m), r.RawBody)
	return m
}

func (a *api) do(t testingT, method, path string, body any, opts ...reqOption) *response {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := &response{
		Status:   resp.StatusCode,
		Cookies:  resp.Cookies(),
		Location: resp.Header.Get(fiber.HeaderLocation),
		RawBody:  string(raw),
	}
	if len(raw) > 0 && resp.Header.Get(fiber.HeaderContentType) == fiber.MIMEApplicationJSON {
		require.NoError(t, json.Unmarshal(raw, &out.Body), string(raw))
	}
	return out
}

// signUp registers an account through send-otp and register.
func (a *api) signUp(t testingT, name, email, password string) *response {
	t.Helper()
	sent := a.do(t, fiber.MethodPost, "/auth/send-otp", map[string]string{"name": name, "email": email})
	require.Equal(t, fiber.StatusOK, sent.Status, sent.RawBody)
	token, _ := sent.data(t)["token"].(string)

	mails := a.mailer.To(email)
	require.NotEmpty(t, mails)
	code := authtest.OTPCode(mails[len(mails)-1].Body)

	resp := a.do(t, fiber.MethodPost, "/auth/register", map[string]any{
		"otpToken": token,
		"otp":      code,
		"user":     map[string]string{"name": name, "email": email, "password": password},
	})
	require.Equal(t, fiber.StatusCreated, resp.Status, resp.RawBody)
	return resp
}

func accessToken(t testingT, r *response) string {
	t.Helper()
	token, _ := r.data(t)["accessToken"].(string)
	require.NotEmpty(t, token, r.RawBody)
	return token
}
