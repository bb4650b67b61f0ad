// Package audit records security-relevant authentication events in the
// append-only audit_log table. Entries are never updated or deleted here.
// Writing an entry is best-effort: a failed insert is logged and swallowed
// so it can never change the outcome of the operation being audited.
package audit

import "time"

// Action identifies the kind of event being recorded.
type Action string

const (
	ActionRegister           Action = "REGISTER"
	ActionSignup             Action = "SIGNUP"
	ActionLoginSuccess       Action = "LOGIN_SUCCESS"
	ActionLoginFailed        Action = "LOGIN_FAILED"
	ActionLogout             Action = "LOGOUT"
	ActionVerifyEmail        Action = "VERIFY_EMAIL"
	ActionResendVerification Action = "RESEND_VERIFICATION"
)

// FailureReason is the precise internal cause of a failed event. It may be
// more specific than what the client is told.
type FailureReason string

const (
	ReasonEmailExists      FailureReason = "EMAIL_EXISTS"
	ReasonTermsNotAccepted FailureReason = "TERMS_NOT_ACCEPTED"
	ReasonUserNotFound     FailureReason = "USER_NOT_FOUND"
	ReasonAccountLocked    FailureReason = "ACCOUNT_LOCKED"
	ReasonInvalidPassword  FailureReason = "INVALID_PASSWORD"
	ReasonEmailNotVerified FailureReason = "EMAIL_NOT_VERIFIED"
)

// UnknownIP is recorded when the caller's address is not available, e.g. for
// flows reached without request metadata.
const UnknownIP = "unknown"

// Entry is a single audit_log row.
type Entry struct {
	ID            int64
	Action        Action
	Email         string
	UserID        string // empty when no account resolved
	IPAddress     string
	UserAgent     string // empty when not sent
	Success       bool
	FailureReason FailureReason
	Metadata      map[string]any
	CreatedAt     time.Time
}
