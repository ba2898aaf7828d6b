// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Cookie names.
const (
	RefreshCookie = "refreshToken"
	StateCookie   = "oauth_state"
)

// stateTTL bounds an OAuth round trip.
const stateTTL = 15 * time.Minute

func (s *Server) production() bool {
	return s.cfg.Environment == EnvProduction
}

func (s *Server) cookie(name, value string, ttl time.Duration) *fiber.Cookie {
	sameSite := fiber.CookieSameSiteLaxMode
	if s.production() {
		sameSite = fiber.CookieSameSiteNoneMode
	}
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		Secure:   s.production(),
		SameSite: sameSite,
	}
}

func (s *Server) setRefreshCookie(c *fiber.Ctx, token string) {
	c.Cookie(s.cookie(RefreshCookie, token, s.cfg.RefreshTTL))
}

// clearCookie expires name with the same attributes it was set with.
func (s *Server) clearCookie(c *fiber.Ctx, name string) {
	ck := s.cookie(name, "", 0)
	ck.MaxAge = 0
	ck.Expires = time.Unix(0, 0)
	c.Cookie(ck)
}
