package auth

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/talentbridge/hrplatform/internal/apperror"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	maxNameLength     = 100
	maxEmailLength    = 255

	passwordSpecials = "@$!%*?&"

	passwordRuleMessage = "Password must be at least 8 characters and contain at least one uppercase letter, " +
		"one lowercase letter, one number, and one special character (@$!%*?&)"
)

// invalid builds the 400 returned for malformed input.
func invalid(message string) *apperror.AppError {
	return apperror.NewBadRequest(message).WithReason(apperror.ReasonValidationFailed)
}

func validateEmail(email string) *apperror.AppError {
	if email == "" {
		return invalid("Email is required")
	}
	if len(email) > maxEmailLength {
		return invalid("Invalid email format")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
		return invalid("Invalid email format")
	}
	return nil
}

// validatePassword enforces length plus one each of upper, lower, digit and
// special. Only letters, digits and the listed specials are allowed.
func validatePassword(password string) *apperror.AppError {
	if password == "" {
		return invalid("Password is required")
	}
	if len(password) < minPasswordLength {
		return invalid("Password must be at least 8 characters")
	}
	if len(password) > maxPasswordLength {
		return invalid("Password must not exceed 128 characters")
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			return invalid(passwordRuleMessage)
		}
	}
	if !upper || !lower || !digit || !special {
		return invalid(passwordRuleMessage)
	}
	return nil
}

func validateName(value, field string) *apperror.AppError {
	if strings.TrimSpace(value) == "" {
		return invalid(field + " is required")
	}
	if utf8.RuneCountInString(value) > maxNameLength {
		return invalid(field + " must not exceed 100 characters")
	}
	return nil
}

// firstError returns the first non-nil validation failure.
func firstError(errs ...*apperror.AppError) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *RegisterRequest) Validate() error {
	var roleErr *apperror.AppError
	if !r.Role.Valid() {
		roleErr = invalid("Role must be ADMIN, RECRUITER, or CLIENT")
	}
	// An empty clientId is treated as absent.
	if r.ClientID != nil && strings.TrimSpace(*r.ClientID) == "" {
		r.ClientID = nil
	}
	return firstError(
		validateEmail(r.Email),
		validatePassword(r.Password),
		validateName(r.FirstName, "First name"),
		validateName(r.LastName, "Last name"),
		roleErr,
	)
}

func (r *SignupRequest) Validate() error {
	return firstError(
		validateEmail(r.Email),
		validatePassword(r.Password),
		validateName(r.FirstName, "First name"),
		validateName(r.LastName, "Last name"),
	)
}

func (r *VerifyEmailRequest) Validate() error {
	if r.Token == "" {
		return invalid("Verification token is required")
	}
	return nil
}

func (r *ResendVerificationRequest) Validate() error {
	return firstError(validateEmail(r.Email))
}

func (r *LoginRequest) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if r.Password == "" {
		return invalid("Password is required")
	}
	return nil
}

func (r *RefreshRequest) Validate() error {
	if r.RefreshToken == "" {
		return invalid("Refresh token is required")
	}
	return nil
}
