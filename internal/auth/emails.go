// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth

import (
	"html/template"
	"strings"

	"github.com/samber/oops"
)

type emailTemplate struct {
	subject string
	body    *template.Template
}

func newEmailTemplate(name, subject, body string) emailTemplate {
	return emailTemplate{
		subject: subject,
		body:    template.Must(template.New(name).Parse(body)),
	}
}

func (t emailTemplate) render(data any) (string, error) {
	var sb strings.Builder
	if err := t.body.Execute(&sb, data); err != nil {
		return "", oops.Code("AUTH_EMAIL_RENDER_FAILED").
			With("template", t.body.Name()).
			Wrap(err)
	}
	return sb.String(), nil
}

var (
	otpEmail = newEmailTemplate("otp", "Your Flickmate verification code",
		`<p>Hi {{.Name}},</p>
<p>Your verification code is <strong>{{.Code}}</strong>. It expires in {{.Minutes}} minutes.</p>`)

	welcomeEmail = newEmailTemplate("welcome", "Welcome to Flickmate",
		`<p>Hi {{.Name}},</p>
<p>Your account is ready. Start tracking the movies you love.</p>`)

	resetEmail = newEmailTemplate("reset", "Reset your Flickmate password",
		`<p>Hi {{.Name}},</p>
<p>Use the link below to choose a new password. It expires in {{.Minutes}} minutes.</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>If you did not ask for this, you can ignore this email.</p>`)

	emailChangeNoticeEmail = newEmailTemplate("email-change-notice", "Your Flickmate email is changing",
		`<p>Hi {{.Name}},</p>
<p>Someone asked to change your account email to {{.NewEmail}}.</p>
<p>If this was not you, change your password now.</p>`)

	emailChangeVerifyEmail = newEmailTemplate("email-change-verify", "Confirm your new Flickmate email",
		`<p>Hi {{.Name}},</p>
<p>Confirm this address for your account. The link expires in {{.Minutes}} minutes.</p>
<p><a href="{{.Link}}">Confirm email</a></p>`)

	emailChangedEmail = newEmailTemplate("email-changed", "Your Flickmate email was changed",
		`<p>Hi {{.Name}},</p>
<p>Your account email is now {{.Email}}. Sign in again on your other devices.</p>`)
)
