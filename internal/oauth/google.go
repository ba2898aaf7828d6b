// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

// Package oauth implements identity providers for the authorization-code
// sign-in flow.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/samber/oops"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/flickmate/flickmate/internal/auth"
)

// GoogleUserInfoURL is the OpenID Connect userinfo endpoint.
const GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// DefaultHTTPTimeout bounds every call to the provider.
const DefaultHTTPTimeout = 10 * time.Second

// maxProfileBytes caps the userinfo response body.
const maxProfileBytes = 1 << 20

// Config configures a Google provider. AuthURL, TokenURL and UserInfoURL
// default to Google's endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	HTTPTimeout  time.Duration
}

// Google signs users in with their Google account.
type Google struct {
	oauth       *oauth2.Config
	userInfoURL string
	client      *http.Client
}

var _ auth.IdentityProvider = (*Google)(nil)

// NewGoogle creates a Google provider.
func NewGoogle(cfg Config) (*Google, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, oops.Code("OAUTH_CONFIG_INVALID").Errorf("client id and secret are required")
	}
	if cfg.RedirectURL == "" {
		return nil, oops.Code("OAUTH_CONFIG_INVALID").Errorf("redirect url is required")
	}

	endpoint := endpoints.Google
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = GoogleUserInfoURL
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

// AuthCodeURL returns the consent page URL carrying state.
func (g *Google) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// ExchangeCode trades an authorization code for a Google access token.
func (g *Google) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		b := oops.Code("OAUTH_EXCHANGE_FAILED")
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			b = b.With("error_code", rerr.ErrorCode).With("status", rerr.Response.StatusCode)
		}
		return "", b.Wrap(err)
	}
	if token.AccessToken == "" {
		return "", oops.Code("OAUTH_EXCHANGE_FAILED").Errorf("token response carried no access token")
	}
	return token.AccessToken, nil
}

type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// FetchProfile reads the userinfo document behind providerToken.
func (g *Google) FetchProfile(ctx context.Context, providerToken string) (*auth.ProviderProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, oops.Code("OAUTH_PROFILE_FAILED").With("operation", "build request").Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+providerToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, oops.Code("OAUTH_PROFILE_FAILED").With("operation", "request userinfo").Wrap(err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // body fully read or abandoned
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, oops.Code("OAUTH_PROFILE_FAILED").
			With("status", resp.StatusCode).
			Errorf("userinfo returned %s", resp.Status)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&info); err != nil {
		return nil, oops.Code("OAUTH_PROFILE_FAILED").With("operation", "decode userinfo").Wrap(err)
	}
	return &auth.ProviderProfile{
		ID:            info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
		Picture:       info.Picture,
	}, nil
}
