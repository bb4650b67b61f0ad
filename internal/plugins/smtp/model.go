// Package smtp provides outbound email for the HR platform. Settings come
// from the environment (see config.SMTPConfig); the password is never
// logged.
package smtp

import "errors"

// Encryption modes accepted in SMTP_ENCRYPTION.
const (
	EncryptionStartTLS = "starttls"
	EncryptionSSL      = "ssl"
	EncryptionNone     = "none"
)

// ErrNotConfigured is returned by SendMail when SMTP is disabled or has no
// host.
var ErrNotConfigured = errors.New("smtp is not configured")

// Mail represents an email message to be sent.
type Mail struct {
	To      []string
	Subject string
	Body    string
}
