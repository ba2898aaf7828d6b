// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

// Package httpapi serves the authentication API over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/flickmate/flickmate/internal/auth"
	"github.com/flickmate/flickmate/internal/gateway"
	"github.com/flickmate/flickmate/internal/observability"
)

// Environments accepted by Config.Environment.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Sessions is the use-case surface behind the routes. Satisfied by
// *auth.Service.
type Sessions interface {
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	SendOTP(ctx context.Context, name, email string) (string, error)
	VerifyOTP(token, email, code string) bool
	Refresh(ctx context.Context, refreshToken string) (*auth.Session, error)
	Logout(ctx context.Context, accountID ulid.ULID, refreshToken, accessToken string) error
	ForgetPassword(ctx context.Context, email string) string
	ResetPassword(ctx context.Context, rawToken, newPassword string) error
	ChangePassword(ctx context.Context, accountID ulid.ULID, currentPassword, newPassword string) (*auth.Session, error)
	ChangeEmailRequest(ctx context.Context, accountID ulid.ULID, currentEmail, newEmail string) error
	ChangeEmail(ctx context.Context, rawToken string, caller auth.Identity) (*auth.EmailChangeResult, error)
	CurrentUser(ctx context.Context, accountID ulid.ULID) (*auth.PublicUser, error)
	OAuthStartURL(state string) (string, error)
	OAuthLogin(ctx context.Context, code string) (*auth.Session, error)
}

var _ Sessions = (*auth.Service)(nil)

// Config configures the HTTP surface.
type Config struct {
	Environment string
	// FrontendURL receives the browser after an OAuth callback.
	FrontendURL  string
	RefreshTTL   time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
}

// Deps are the collaborators of a Server.
type Deps struct {
	Sessions Sessions
	Gateway  *gateway.Authenticator
	// Metrics is optional.
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Server is the fiber application for the /auth routes.
type Server struct {
	app      *fiber.App
	cfg      Config
	sessions Sessions
	gateway  *gateway.Authenticator
	metrics  *observability.Metrics
	validate *validator.Validate
	logger   *slog.Logger
}

// New builds the application and registers every route.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Sessions == nil || deps.Gateway == nil {
		return nil, oops.Errorf("sessions and gateway are required")
	}
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = auth.DefaultRefreshTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		sessions: deps.Sessions,
		gateway:  deps.Gateway,
		metrics:  deps.Metrics,
		validate: newValidator(),
		logger:   logger,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "flickmate-auth",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.app.Use(s.observe)

	g := s.app.Group("/auth")
	g.Post("/login", s.login)
	g.Post("/register", s.register)
	g.Post("/send-otp", s.sendOTP)
	g.Post("/verify-otp", s.verifyOTP)
	g.Post("/refresh-token", s.refresh)
	g.Post("/forget-password", s.forgetPassword)
	g.Post("/reset-password", s.resetPassword)
	g.Post("/change-password", s.gateway.Required(), s.changePassword)
	g.Post("/change-email-request", s.gateway.Required(), s.changeEmailRequest)
	g.Post("/change-email", s.gateway.Optional(), s.changeEmail)
	g.Post("/logout", s.gateway.Required(), s.logout)
	g.Get("/me", s.gateway.Optional(), s.me)
	g.Get("/oauth/start", s.oauthStart)
	g.Get("/oauth/callback", s.oauthCallback)
}

// App returns the fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	if err := s.app.Listen(addr); err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	return nil
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.app.Listener(ln); err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", ln.Addr().String()).Wrap(err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}

// observe logs and measures each request.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		// Run the error handler now so the logged status is the real one.
		if herr := s.handleError(c, err); herr != nil {
			return herr
		}
	}
	elapsed := time.Since(start)
	status := c.Response().StatusCode()

	if s.metrics != nil {
		s.metrics.ObserveRequest(c.Method(), c.Route().Path, status, elapsed)
	}
	s.logger.DebugContext(c.UserContext(), "request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration", elapsed)
	return nil
}
