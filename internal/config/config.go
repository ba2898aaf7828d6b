// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

// Package config loads service configuration from defaults, a YAML file,
// FLICKMATE_ environment variables and command-line flags, in that order.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/flickmate/flickmate/internal/auth"
	"github.com/flickmate/flickmate/internal/httpapi"
	"github.com/flickmate/flickmate/internal/logging"
	"github.com/flickmate/flickmate/internal/mail"
)

// EnvPrefix marks environment variables read by Load. A double underscore
// separates nesting levels: FLICKMATE_TOKENS__ACCESS_SECRET is
// tokens.access_secret.
const EnvPrefix = "FLICKMATE_"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the complete service configuration.
type Config struct {
	Environment string         `koanf:"environment"`
	HTTP        HTTPConfig     `koanf:"http"`
	Database    DatabaseConfig `koanf:"database"`
	Redis       RedisConfig    `koanf:"redis"`
	Tokens      TokensConfig   `koanf:"tokens"`
	Hashing     HashingConfig  `koanf:"hashing"`
	SMTP        SMTPConfig     `koanf:"smtp"`
	OAuth       OAuthConfig    `koanf:"oauth"`
	Links       LinksConfig    `koanf:"links"`
	Metrics     MetricsConfig  `koanf:"metrics"`
	Log         LogConfig      `koanf:"log"`
	Limits      LimitsConfig   `koanf:"limits"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	FrontendURL     string        `koanf:"frontend_url"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	BodyLimit       int           `koanf:"body_limit"`
}

// DatabaseConfig selects and tunes the account store.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// RedisConfig configures the revocation store.
type RedisConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Addr      string        `koanf:"addr"`
	Username  string        `koanf:"username"`
	Password  string        `koanf:"password"`
	DB        int           `koanf:"db"`
	PoolSize  int           `koanf:"pool_size"`
	OpTimeout time.Duration `koanf:"op_timeout"`
	Prefix    string        `koanf:"prefix"`
}

// TokensConfig holds the signing secrets and lifetimes.
type TokensConfig struct {
	AccessSecret  string        `koanf:"access_secret"`
	RefreshSecret string        `koanf:"refresh_secret"`
	PurposeSecret string        `koanf:"purpose_secret"`
	AccessTTL     time.Duration `koanf:"access_ttl"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl"`
	PurposeTTL    time.Duration `koanf:"purpose_ttl"`
	Issuer        string        `koanf:"issuer"`
}

// HashingConfig tunes password hashing.
type HashingConfig struct {
	BcryptCost int `koanf:"bcrypt_cost"`
}

// SMTPConfig configures outgoing mail. When disabled, mail is logged.
type SMTPConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	From     string        `koanf:"from"`
	TLS      string        `koanf:"tls"`
	Timeout  time.Duration `koanf:"timeout"`
	Attempts uint64        `koanf:"attempts"`
}

// OAuthConfig configures external identity providers.
type OAuthConfig struct {
	Google GoogleConfig `koanf:"google"`
}

// GoogleConfig configures Google sign-in.
type GoogleConfig struct {
	Enabled      bool          `koanf:"enabled"`
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	RedirectURL  string        `koanf:"redirect_url"`
	HTTPTimeout  time.Duration `koanf:"http_timeout"`
}

// LinksConfig holds the frontend pages linked from emails.
type LinksConfig struct {
	ResetPassword string `koanf:"reset_password"`
	ChangeEmail   string `koanf:"change_email"`
}

// MetricsConfig configures the metrics and health listener. An empty
// address disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// LimitsConfig bounds background and abusive work.
type LimitsConfig struct {
	LoginThrottling bool          `koanf:"login_throttling"`
	MailTimeout     time.Duration `koanf:"mail_timeout"`
}

// Default returns the configuration used for anything not set elsewhere.
// Secrets have no defaults.
func Default() Config {
	return Config{
		Environment: httpapi.EnvDevelopment,
		HTTP: HTTPConfig{
			Addr:            ":8080",
			FrontendURL:     "http://localhost:3000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			BodyLimit:       1 << 20,
		},
		Database: DatabaseConfig{
			Driver:          DriverPostgres,
			MaxConns:        10,
			MaxConnLifetime: time.Hour,
		},
		Redis: RedisConfig{
			Enabled:   true,
			Addr:      "localhost:6379",
			PoolSize:  10,
			OpTimeout: 250 * time.Millisecond,
			Prefix:    "flickmate:",
		},
		Tokens: TokensConfig{
			AccessTTL:  auth.DefaultAccessTTL,
			RefreshTTL: auth.DefaultRefreshTTL,
			PurposeTTL: auth.DefaultPurposeTTL,
			Issuer:     "flickmate",
		},
		Hashing: HashingConfig{BcryptCost: auth.DefaultBcryptCost},
		SMTP: SMTPConfig{
			Port:     587,
			TLS:      mail.TLSMandatory,
			Timeout:  mail.DefaultSendTimeout,
			Attempts: mail.DefaultAttempts,
		},
		Links: LinksConfig{
			ResetPassword: "http://localhost:3000/reset-password",
			ChangeEmail:   "http://localhost:3000/change-email",
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Limits: LimitsConfig{
			LoginThrottling: true,
			MailTimeout:     30 * time.Second,
		},
	}
}

// FlagKeys maps command-line flag names to configuration keys. Only flags
// listed here and changed on the command line override the configuration.
var FlagKeys = map[string]string{
	"env":          "environment",
	"addr":         "http.addr",
	"database-url": "database.url",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// Load builds the configuration. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").With("operation", "decode").Wrap(err)
	}
	return cfg, nil
}

// envKey turns FLICKMATE_SMTP__FROM into smtp.from.
func envKey(name string) string {
	name = strings.TrimPrefix(name, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "__", ".")
}

// Validate reports the first problem that would stop the service.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
	}

	switch c.Environment {
	case httpapi.EnvDevelopment, httpapi.EnvProduction:
	default:
		return invalid("environment", "environment must be %q or %q, got %q",
			httpapi.EnvDevelopment, httpapi.EnvProduction, c.Environment)
	}

	secrets := map[string]string{
		"tokens.access_secret":  c.Tokens.AccessSecret,
		"tokens.refresh_secret": c.Tokens.RefreshSecret,
		"tokens.purpose_secret": c.Tokens.PurposeSecret,
	}
	for _, field := range []string{"tokens.access_secret", "tokens.refresh_secret", "tokens.purpose_secret"} {
		if secrets[field] == "" {
			return invalid(field, "%s is required", field)
		}
	}
	if c.Tokens.AccessSecret == c.Tokens.RefreshSecret ||
		c.Tokens.AccessSecret == c.Tokens.PurposeSecret ||
		c.Tokens.RefreshSecret == c.Tokens.PurposeSecret {
		return invalid("tokens", "token secrets must all differ")
	}

	if c.Hashing.BcryptCost < bcrypt.MinCost || c.Hashing.BcryptCost > bcrypt.MaxCost {
		return invalid("hashing.bcrypt_cost", "bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Hashing.BcryptCost)
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "database.url is required for the postgres driver")
		}
	case DriverMemory:
		if c.Environment == httpapi.EnvProduction {
			return invalid("database.driver", "the memory driver is not allowed in production")
		}
	default:
		return invalid("database.driver", "unknown database driver %q", c.Database.Driver)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}

	if c.SMTP.Enabled {
		if err := c.MailConfig().Validate(); err != nil {
			return invalid("smtp", "smtp: %s", err.Error())
		}
	}
	if g := c.OAuth.Google; g.Enabled && (g.ClientID == "" || g.ClientSecret == "" || g.RedirectURL == "") {
		return invalid("oauth.google", "client_id, client_secret and redirect_url are required when google sign-in is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return invalid("redis.addr", "redis.addr is required when redis is enabled")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	return nil
}
