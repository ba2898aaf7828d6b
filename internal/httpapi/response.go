// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/flickmate/flickmate/internal/auth"
	"github.com/flickmate/flickmate/pkg/errutil"
)

// envelope wraps every response body.
type envelope struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data,omitempty"`
}

func respond(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(envelope{
		Status:     "success",
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

func fail(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(envelope{
		Status:     "error",
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

var statusByKind = map[auth.Kind]int{
	auth.KindInvalidCredentials: fiber.StatusUnauthorized,
	auth.KindUseOAuth:           fiber.StatusBadRequest,
	auth.KindUnauthorized:       fiber.StatusUnauthorized,
	auth.KindConflict:           fiber.StatusConflict,
	auth.KindBadRequest:         fiber.StatusBadRequest,
	auth.KindForbidden:          fiber.StatusForbidden,
	auth.KindNotFound:           fiber.StatusNotFound,
	auth.KindTooManyAttempts:    fiber.StatusTooManyRequests,
	auth.KindUpstream:           fiber.StatusBadGateway,
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if status, ok := statusByKind[auth.KindOf(err)]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// handleError is the fiber error handler. Server errors are logged with
// their oops context; clients only see the public message.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := StatusFor(err)

	var fe *fiber.Error
	message := auth.PublicMessage(err)
	if errors.As(err, &fe) {
		message = fe.Message
	}

	ctx := c.UserContext()
	if status >= fiber.StatusInternalServerError {
		errutil.LogErrorContext(ctx, s.logger.With("path", c.Path(), "method", c.Method()), "request failed", err)
	} else {
		s.logger.DebugContext(ctx, "request rejected",
			"path", c.Path(),
			"status", status,
			"code", errutil.Code(err))
	}
	return fail(c, status, message, nil)
}
