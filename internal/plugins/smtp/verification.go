package smtp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// sendTimeout bounds one background delivery.
const sendTimeout = 30 * time.Second

const verificationSubject = "Verify your email address"

// VerificationSender delivers email verification links. Delivery runs in the
// background and never reports back to the caller; failures are logged.
// Outside production, or when SMTP is not configured, the link is logged
// instead of sent.
type VerificationSender struct {
	mail        MailService
	frontendURL string
	production  bool

	wg sync.WaitGroup
}

// NewVerificationSender creates a sender that links to frontendURL.
func NewVerificationSender(mail MailService, frontendURL string, production bool) *VerificationSender {
	return &VerificationSender{
		mail:        mail,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		production:  production,
	}
}

// VerificationURL is the frontend page that consumes token.
func (v *VerificationSender) VerificationURL(token string) string {
	return v.frontendURL + "/verify-email?token=" + url.QueryEscape(token)
}

// SendVerificationEmail schedules the verification email and returns
// immediately.
func (v *VerificationSender) SendVerificationEmail(ctx context.Context, email, token, firstName string) {
	link := v.VerificationURL(token)

	if !v.production {
		slog.Info("verification email (not sent in development)",
			slog.String("email", email),
			slog.String("first_name", firstName),
			slog.String("url", link),
		)
		return
	}
	if !v.mail.IsConfigured() {
		slog.Warn("smtp not configured; verification email not sent",
			slog.String("email", email),
			slog.String("url", link),
		)
		return
	}

	m := Mail{
		To:      []string{email},
		Subject: verificationSubject,
		Body:    verificationBody(firstName, link),
	}

	// The request context ends when the response is written; delivery
	// outlives it but keeps its values.
	bg := context.WithoutCancel(ctx)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		sendCtx, cancel := context.WithTimeout(bg, sendTimeout)
		defer cancel()

		if err := v.mail.SendMail(sendCtx, m); err != nil {
			slog.Error("sending verification email",
				slog.String("email", email),
				slog.Any("error", err),
			)
			return
		}
		slog.Debug("verification email sent", slog.String("email", email))
	}()
}

// Wait blocks until in-flight deliveries finish. Called on shutdown.
func (v *VerificationSender) Wait() {
	v.wg.Wait()
}

func verificationBody(firstName, link string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(`Hi %s,

Thanks for signing up. Please confirm your email address by opening the link below:

%s

This link expires in 24 hours. If you did not create an account, you can ignore this email.
`, name, link)
}
