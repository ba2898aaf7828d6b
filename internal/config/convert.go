// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package config

import (
	"github.com/flickmate/flickmate/internal/auth"
	"github.com/flickmate/flickmate/internal/httpapi"
	"github.com/flickmate/flickmate/internal/mail"
	"github.com/flickmate/flickmate/internal/oauth"
	"github.com/flickmate/flickmate/internal/revocation"
	"github.com/flickmate/flickmate/internal/store"
)

// TokenConfig returns the token codec settings.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:  c.Tokens.AccessSecret,
		RefreshSecret: c.Tokens.RefreshSecret,
		PurposeSecret: c.Tokens.PurposeSecret,
		AccessTTL:     c.Tokens.AccessTTL,
		RefreshTTL:    c.Tokens.RefreshTTL,
		PurposeTTL:    c.Tokens.PurposeTTL,
		Issuer:        c.Tokens.Issuer,
	}
}

// PoolConfig returns the postgres pool settings.
func (c *Config) PoolConfig() store.PoolConfig {
	return store.PoolConfig{
		URL:             c.Database.URL,
		MaxConns:        c.Database.MaxConns,
		MinConns:        c.Database.MinConns,
		MaxConnLifetime: c.Database.MaxConnLifetime,
	}
}

// RevocationConfig returns the Redis settings, keeping the client timeouts
// of revocation.DefaultConfig.
func (c *Config) RevocationConfig() revocation.Config {
	cfg := revocation.DefaultConfig()
	cfg.Enabled = c.Redis.Enabled
	cfg.Addr = c.Redis.Addr
	cfg.Username = c.Redis.Username
	cfg.Password = c.Redis.Password
	cfg.DB = c.Redis.DB
	if c.Redis.PoolSize > 0 {
		cfg.PoolSize = c.Redis.PoolSize
	}
	if c.Redis.OpTimeout > 0 {
		cfg.OpTimeout = c.Redis.OpTimeout
	}
	cfg.Prefix = c.Redis.Prefix
	return cfg
}

// MailConfig returns the SMTP settings.
func (c *Config) MailConfig() mail.Config {
	return mail.Config{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		TLS:      c.SMTP.TLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// GoogleConfig returns the Google sign-in settings.
func (c *Config) GoogleConfig() oauth.Config {
	return oauth.Config{
		ClientID:     c.OAuth.Google.ClientID,
		ClientSecret: c.OAuth.Google.ClientSecret,
		RedirectURL:  c.OAuth.Google.RedirectURL,
		HTTPTimeout:  c.OAuth.Google.HTTPTimeout,
	}
}

// HTTPConfig returns the API server settings.
func (c *Config) HTTPConfig() httpapi.Config {
	return httpapi.Config{
		Environment:  c.Environment,
		FrontendURL:  c.HTTP.FrontendURL,
		RefreshTTL:   c.Tokens.RefreshTTL,
		ReadTimeout:  c.HTTP.ReadTimeout,
		WriteTimeout: c.HTTP.WriteTimeout,
		BodyLimit:    c.HTTP.BodyLimit,
	}
}

// AuthLinks returns the email link targets.
func (c *Config) AuthLinks() auth.Links {
	return auth.Links{
		ResetPassword: c.Links.ResetPassword,
		ChangeEmail:   c.Links.ChangeEmail,
	}
}
