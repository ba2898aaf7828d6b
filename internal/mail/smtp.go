// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

// Package mail delivers transactional email.
package mail

import (
	"context"
	"time"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

// DefaultSendTimeout bounds a single SMTP delivery.
const DefaultSendTimeout = 10 * time.Second

// TLS policies accepted by Config.TLS.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// Config describes an SMTP relay.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      string
	Timeout  time.Duration
}

// Validate checks the fields required to send.
func (c Config) Validate() error {
	if c.Host == "" {
		return oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if c.From == "" {
		return oops.Code("MAIL_CONFIG_INVALID").Errorf("sender address is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return oops.Code("MAIL_CONFIG_INVALID").With("port", c.Port).Errorf("port out of range")
	}
	if _, err := tlsPolicy(c.TLS); err != nil {
		return err
	}
	return nil
}

func tlsPolicy(name string) (gomail.TLSPolicy, error) {
	switch name {
	case "", TLSMandatory:
		return gomail.TLSMandatory, nil
	case TLSOpportunistic:
		return gomail.TLSOpportunistic, nil
	case TLSNone:
		return gomail.NoTLS, nil
	}
	return gomail.NoTLS, oops.Code("MAIL_CONFIG_INVALID").With("tls", name).Errorf("unknown tls policy %q", name)
}

// SMTPSender sends HTML email through an SMTP relay. Each Send dials a new
// connection.
type SMTPSender struct {
	cfg  Config
	opts []gomail.Option
}

// NewSMTPSender validates cfg and prepares client options.
func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, _ := tlsPolicy(cfg.TLS) //nolint:errcheck // checked by Validate
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}

	opts := []gomail.Option{
		gomail.WithTLSPortPolicy(policy),
		gomail.WithTimeout(timeout),
	}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password))
	}
	return &SMTPSender{cfg: cfg, opts: opts}, nil
}

// Send delivers one message.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg, err := s.message(to, subject, htmlBody)
	if err != nil {
		return err
	}
	client, err := gomail.NewClient(s.cfg.Host, s.opts...)
	if err != nil {
		return oops.Code("MAIL_CLIENT_FAILED").With("host", s.cfg.Host).Wrap(err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("host", s.cfg.Host).
			With("subject", subject).
			Wrap(err)
	}
	return nil
}

func (s *SMTPSender) message(to, subject, htmlBody string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, oops.Code("MAIL_ADDRESS_INVALID").With("field", "from").Wrap(err)
	}
	if err := msg.To(to); err != nil {
		return nil, oops.Code("MAIL_ADDRESS_INVALID").With("field", "to").Wrap(err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)
	return msg, nil
}
