// Package auth handles credential verification, brute-force lockout, email
// verification, and access/refresh token lifecycle for the HR platform.
// Stateless per call: all durable state lives in the CredentialStore.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// Role is the authorization role carried by an account and its access token.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleRecruiter Role = "RECRUITER"
	RoleClient    Role = "CLIENT"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleRecruiter, RoleClient:
		return true
	}
	return false
}

// Account is a user record as owned by the store. The service never caches
// one across calls.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	ClientID     *string

	EmailVerified            bool
	EmailVerificationToken   *string
	EmailVerificationExpires *time.Time

	FailedLoginAttempts int
	LockoutUntil        *time.Time
	TermsAcceptedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefreshToken is a persisted opaque refresh secret. Account is populated by
// FindByRefreshToken with the owning account.
type RefreshToken struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time

	Account *Account
}

// ClientSummary is the slice of a Client entity the auth flows need.
type ClientSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RequestMeta carries the caller's network identity into audited flows.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest is the admin-register body.
type RegisterRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Role      Role    `json:"role"`
	ClientID  *string `json:"clientId"`
}

// SignupRequest is the public-signup body.
type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	AcceptTerms bool   `json:"acceptTerms"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type ResendVerificationRequest struct {
	Email string `json:"email"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// --- Responses ---

// UserView is the account projection returned by register and login.
type UserView struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Role      Role       `json:"role"`
	ClientID  *string    `json:"clientId"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// AuthResult is returned by flows that issue a token pair.
type AuthResult struct {
	User         UserView `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

// AccessResult is returned by refresh.
type AccessResult struct {
	AccessToken string `json:"accessToken"`
}

// MessageResult is returned by flows that only report an outcome.
type MessageResult struct {
	Message string `json:"message"`
}

// CurrentUser is the /auth/me projection.
type CurrentUser struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	FirstName     string         `json:"firstName"`
	LastName      string         `json:"lastName"`
	Role          Role           `json:"role"`
	ClientID      *string        `json:"clientId"`
	EmailVerified bool           `json:"emailVerified"`
	Client        *ClientSummary `json:"client"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// userView projects the public fields of an account.
func userView(a *Account, withCreated bool) UserView {
	v := UserView{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Role:      a.Role,
		ClientID:  a.ClientID,
	}
	if withCreated {
		created := a.CreatedAt
		v.CreatedAt = &created
	}
	return v
}
