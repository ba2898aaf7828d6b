// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package httpapi_test

import (
	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/flickmate/flickmate/internal/auth/authtest"
	"github.com/flickmate/flickmate/internal/httpapi"
)

// lastLink returns the newest emailed link token for recipient.
func lastLink(a *api, recipient string) string {
	a.svc.Close()
	var token string
	for _, m := range a.mailer.To(recipient) {
		if t := authtest.LinkToken(m.Body); t != "" {
			token = t
		}
	}
	return token
}

var _ = Describe("Account lifecycle", func() {
	var a *api

	BeforeEach(func() {
		a = newAPI(GinkgoT())
	})

	Describe("registration", func() {
		It("signs the new account in", func() {
			resp := a.signUp(GinkgoT(), "Ada", "ada@example.com", "correct horse")
			Expect(resp.cookie(httpapi.RefreshCookie)).NotTo(BeNil())

			me := a.do(GinkgoT(), fiber.MethodGet, "/auth/me", nil, bearer(accessToken(GinkgoT(), resp)))
			Expect(me.Status).To(Equal(fiber.StatusOK))
			Expect(me.data(GinkgoT())).To(HaveKeyWithValue("isAuthenticated", true))
		})

		It("refuses a second account for the same email", func() {
			a.signUp(GinkgoT(), "Ada", "ada@example.com", "correct horse")

			sent := a.do(GinkgoT(), fiber.MethodPost, "/auth/send-otp",
				map[string]string{"name": "Ada", "email": "ada@example.com"})
			Expect(sent.Status).To(Equal(fiber.StatusOK))
			mails := a.mailer.To("ada@example.com")
			code := authtest.OTPCode(mails[len(mails)-1].Body)

			resp := a.do(GinkgoT(), fiber.MethodPost, "/auth/register", map[string]any{
				"otpToken": sent.data(GinkgoT())["token"],
				"otp":      code,
				"user":     map[string]string{"name": "Ada", "email": "ada@example.com", "password": "other"},
			})
			Expect(resp.Status).To(Equal(fiber.StatusConflict))
			Expect(resp.Body.Message).To(Equal("email is already in use"))
		})
	})

	Describe("refresh token reuse", func() {
		It("invalidates every session of the account", func() {
			first := a.signUp(GinkgoT(), "Ada", "ada@example.com", "correct horse")
			second := a.do(GinkgoT(), fiber.MethodPost, "/auth/login",
				map[string]string{"email": "ada@example.com", "password": "correct horse"})
			Expect(second.Status).To(Equal(fiber.StatusOK))

			stolen := first.cookie(httpapi.RefreshCookie).Value
			rotated := a.do(GinkgoT(), fiber.MethodPost, "/auth/refresh-token", nil,
				cookie(httpapi.RefreshCookie, stolen))
			Expect(rotated.Status).To(Equal(fiber.StatusOK))

			replay := a.do(GinkgoT(), fiber.MethodPost, "/auth/refresh-token", nil,
				cookie(httpapi.RefreshCookie, stolen))
			Expect(replay.Status).To(Equal(fiber.StatusUnauthorized))

			for _, ck := range []string{
				rotated.cookie(httpapi.RefreshCookie).Value,
				second.cookie(httpapi.RefreshCookie).Value,
			} {
				resp := a.do(GinkgoT(), fiber.MethodPost, "/auth/refresh-token", nil,
					cookie(httpapi.RefreshCookie, ck))
				Expect(resp.Status).To(Equal(fiber.StatusUnauthorized))
			}
		})
	})

	Describe("password reset", func() {
		It("replaces the password once and signs out every session", func() {
			signed := a.signUp(GinkgoT(), "Ada", "ada@example.com", "correct horse")

			resp := a.do(GinkgoT(), fiber.MethodPost, "/auth/forget-password",
				map[string]string{"email": "ada@example.com"})
			Expect(resp.Status).To(Equal(fiber.StatusOK))

			token := lastLink(a, "ada@example.com")
			Expect(token).NotTo(BeEmpty())

			reset := a.do(GinkgoT(), fiber.MethodPost, "/auth/reset-password",
				map[string]string{"token": token, "newPassword": "battery staple"})
			Expect(reset.Status).To(Equal(fiber.StatusOK))

			again := a.do(GinkgoT(), fiber.MethodPost, "/auth/reset-password",
				map[string]string{"token": token, "newPassword": "third try"})
			Expect(again.Status).To(Equal(fiber.StatusBadRequest))

			old := a.do(GinkgoT(), fiber.MethodPost, "/auth/refresh-token", nil,
				cookie(httpapi.RefreshCookie, signed.cookie(httpapi.RefreshCookie).Value))
			Expect(old.Status).To(Equal(fiber.StatusUnauthorized))

			login := a.do(GinkgoT(), fiber.MethodPost, "/auth/login",
				map[string]string{"email": "ada@example.com", "password": "battery staple"})
			Expect(login.Status).To(Equal(fiber.StatusOK))
		})
	})

	Describe("email change", func() {
		It("moves the account to the confirmed address", func() {
			signed := a.signUp(GinkgoT(), "Ada", "ada@example.com", "correct horse")
			token := accessToken(GinkgoT(), signed)

			req := a.do(GinkgoT(), fiber.MethodPost, "/auth/change-email-request",
				map[string]string{"newEmail": "ada@new.example"}, bearer(token))
			Expect(req.Status).To(Equal(fiber.StatusOK))

			link := lastLink(a, "ada@new.example")
			Expect(link).NotTo(BeEmpty())

			changed := a.do(GinkgoT(), fiber.MethodPost, "/auth/change-email",
				map[string]string{"token": link}, bearer(token))
			Expect(changed.Status).To(Equal(fiber.StatusOK))
			Expect(changed.cookie(httpapi.RefreshCookie)).NotTo(BeNil())
			user := changed.data(GinkgoT())["user"].(map[string]any)
			Expect(user["email"]).To(Equal("ada@new.example"))

			oldLogin := a.do(GinkgoT(), fiber.MethodPost, "/auth/login",
				map[string]string{"email": "ada@example.com", "password": "correct horse"})
			Expect(oldLogin.Status).To(Equal(fiber.StatusUnauthorized))
		})

		It("asks anonymous callers to sign in again", func() {
			signed := a.signUp(GinkgoT(), "Ada", "ada@example.com", "correct horse")
			req := a.do(GinkgoT(), fiber.MethodPost, "/auth/change-email-request",
				map[string]string{"newEmail": "ada@new.example"}, bearer(accessToken(GinkgoT(), signed)))
			Expect(req.Status).To(Equal(fiber.StatusOK))

			changed := a.do(GinkgoT(), fiber.MethodPost, "/auth/change-email",
				map[string]string{"token": lastLink(a, "ada@new.example")})
			Expect(changed.Status).To(Equal(fiber.StatusOK))
			Expect(changed.Body.Data).To(BeEmpty())
			Expect(changed.cookie(httpapi.RefreshCookie).Value).To(BeEmpty())
		})
	})
})
