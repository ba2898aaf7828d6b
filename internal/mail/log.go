// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package mail

import (
	"context"
	"log/slog"
)

// LogSender writes email to a logger instead of sending it. For local
// development without an SMTP relay.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the recipient and subject at INFO and the body at DEBUG.
func (l *LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	l.logger.InfoContext(ctx, "email not sent, smtp disabled", "to", to, "subject", subject)
	l.logger.DebugContext(ctx, "email body", "to", to, "body", htmlBody)
	return nil
}
