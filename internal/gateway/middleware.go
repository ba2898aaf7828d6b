// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package gateway

import (
	"github.com/gofiber/fiber/v2"
)

// localsKey stores the Identity in fiber locals.
const localsKey = "flickmate.identity"

// Required rejects requests without a valid access token. The error is
// returned to the app's error handler.
func (a *Authenticator) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := a.Authenticate(c.UserContext(), c.Get(fiber.HeaderAuthorization))
		if err != nil {
			a.logger.DebugContext(c.UserContext(), "request rejected by gateway",
				"path", c.Path(),
				"error", err)
			return err
		}
		attach(c, identity)
		return c.Next()
	}
}

// Optional never rejects. Requests without a valid token carry an
// unauthenticated identity.
func (a *Authenticator) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := a.Authenticate(c.UserContext(), c.Get(fiber.HeaderAuthorization))
		if err != nil {
			identity = Identity{}
		}
		attach(c, identity)
		return c.Next()
	}
}

func attach(c *fiber.Ctx, identity Identity) {
	c.Locals(localsKey, identity)
	c.SetUserContext(WithIdentity(c.UserContext(), identity))
}

// IdentityFrom returns the identity attached by Required or Optional.
func IdentityFrom(c *fiber.Ctx) Identity {
	identity, _ := c.Locals(localsKey).(Identity)
	return identity
}
