package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talentbridge/hrplatform/internal/apperror"
	"github.com/talentbridge/hrplatform/internal/plugins/audit"
)

// Client-facing messages. Login failures share msgInvalidCredentials so a
// missing account and a wrong password are indistinguishable.
const (
	msgInvalidClient       = "Invalid client ID"
	msgMissingClientID     = "Client ID is required for CLIENT role users"
	msgEmailExists         = "User with this email already exists"
	msgTermsNotAccepted    = "You must accept the terms of service"
	msgSignupConflict      = "Unable to create account with this email"
	msgSignupCreated       = "Account created successfully. Please check your email to verify your account."
	msgInvalidVerification = "Invalid verification token"
	msgExpiredVerification = "Verification token has expired. Please request a new one."
	msgEmailVerified       = "Email verified successfully. You can now log in."
	msgVerificationSent    = "If your email exists, a verification link has been sent."
	msgAlreadyVerified     = "Your email is already verified. You can log in."
	msgInvalidCredentials  = "Invalid credentials"
	msgAccountLocked       = "Account is locked. Try again in %d minutes."
	msgLockedNow           = "Account locked due to too many failed attempts. Try again in %d minutes."
	msgEmailNotVerified    = "Please verify your email before logging in"
	msgInvalidRefresh      = "Invalid refresh token"
	msgExpiredRefresh      = "Refresh token expired"
	msgLoggedOut           = "Logged out successfully"
	msgUserNotFound        = "User not found"
)

// EmailSender delivers verification emails. Delivery is fire-and-forget:
// the service never observes whether it succeeded.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, email, token, firstName string)
}

// AuditRecorder appends security events. Log must not fail the caller.
type AuditRecorder interface {
	Log(ctx context.Context, entry audit.Entry)
}

// AuthService defines the authentication flows. Handlers call these
// methods; they never touch the store directly.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest, actorID string, meta RequestMeta) (*AuthResult, error)
	Signup(ctx context.Context, req SignupRequest, meta RequestMeta) (*MessageResult, error)
	VerifyEmail(ctx context.Context, token string, meta RequestMeta) (*MessageResult, error)
	ResendVerification(ctx context.Context, email string, meta RequestMeta) (*MessageResult, error)
	Login(ctx context.Context, req LoginRequest, meta RequestMeta) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AccessResult, error)
	Logout(ctx context.Context, userID string, meta RequestMeta) (*MessageResult, error)
	GetCurrentUser(ctx context.Context, userID string) (*CurrentUser, error)

	// ParseAccessToken verifies a bearer token for the HTTP middleware.
	ParseAccessToken(token string) (*Claims, error)
}

// authService implements AuthService. It holds no per-account state.
type authService struct {
	store   CredentialStore
	clients ClientFinder
	secrets *SecretGenerator
	tokens  *TokenIssuer
	lockout LockoutPolicy
	audit   AuditRecorder
	mailer  EmailSender
	now     func() time.Time
}

// NewAuthService wires the service from its collaborators.
func NewAuthService(
	store CredentialStore,
	clients ClientFinder,
	secrets *SecretGenerator,
	tokens *TokenIssuer,
	lockout LockoutPolicy,
	recorder AuditRecorder,
	mailer EmailSender,
) AuthService {
	return &authService{
		store:   store,
		clients: clients,
		secrets: secrets,
		tokens:  tokens,
		lockout: lockout,
		audit:   recorder,
		mailer:  mailer,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a pre-verified account on behalf of an admin and issues
// it a token pair.
func (s *authService) Register(ctx context.Context, req RegisterRequest, actorID string, meta RequestMeta) (*AuthResult, error) {
	if req.ClientID != nil {
		client, err := s.clients.FindClient(ctx, *req.ClientID)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("finding client: %w", err))
		}
		if client == nil {
			return nil, apperror.NewBadRequest(msgInvalidClient).WithReason(apperror.ReasonInvalidClient)
		}
	}
	if req.Role == RoleClient && req.ClientID == nil {
		return nil, apperror.NewBadRequest(msgMissingClientID).WithReason(apperror.ReasonMissingClientID)
	}

	existing, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if existing != nil {
		return nil, s.registerConflict(ctx, req.Email, actorID, meta)
	}

	hash, err := s.secrets.HashPassword(req.Password)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	now := s.now()
	account := &Account{
		ID:            uuid.NewString(),
		Email:         req.Email,
		PasswordHash:  hash,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Role:          req.Role,
		ClientID:      req.ClientID,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, s.registerConflict(ctx, req.Email, actorID, meta)
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating account: %w", err))
	}

	s.audit.Log(ctx, audit.Entry{
		Action:    audit.ActionRegister,
		Email:     account.Email,
		UserID:    account.ID,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
		Metadata:  map[string]any{"createdBy": actorID, "role": string(req.Role)},
	})

	pair, err := s.tokens.IssuePair(ctx, account, now)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("issuing tokens: %w", err))
	}

	slog.Info("account registered by admin",
		slog.String("user_id", account.ID),
		slog.String("created_by", actorID),
		slog.String("role", string(account.Role)),
	)

	return &AuthResult{
		User:         userView(account, true),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (s *authService) registerConflict(ctx context.Context, email, actorID string, meta RequestMeta) error {
	s.audit.Log(ctx, audit.Entry{
		Action:        audit.ActionRegister,
		Email:         email,
		UserID:        actorID,
		IPAddress:     meta.IP,
		UserAgent:     meta.UserAgent,
		FailureReason: audit.ReasonEmailExists,
	})
	return apperror.NewConflict(msgEmailExists).WithReason(apperror.ReasonEmailExists)
}

// Signup creates an unverified Client account and requests a verification
// email. No tokens are issued until the address is verified.
func (s *authService) Signup(ctx context.Context, req SignupRequest, meta RequestMeta) (*MessageResult, error) {
	if !req.AcceptTerms {
		s.audit.Log(ctx, audit.Entry{
			Action:        audit.ActionSignup,
			Email:         req.Email,
			IPAddress:     meta.IP,
			UserAgent:     meta.UserAgent,
			FailureReason: audit.ReasonTermsNotAccepted,
		})
		return nil, apperror.NewBadRequest(msgTermsNotAccepted).WithReason(apperror.ReasonTermsNotAccepted)
	}

	existing, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if existing != nil {
		return nil, s.signupConflict(ctx, req.Email, meta)
	}

	hash, err := s.secrets.HashPassword(req.Password)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	now := s.now()
	token, expires, err := s.secrets.NewVerificationToken(now)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	account := &Account{
		ID:                       uuid.NewString(),
		Email:                    req.Email,
		PasswordHash:             hash,
		FirstName:                req.FirstName,
		LastName:                 req.LastName,
		Role:                     RoleClient,
		EmailVerified:            false,
		EmailVerificationToken:   &token,
		EmailVerificationExpires: &expires,
		TermsAcceptedAt:          &now,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, s.signupConflict(ctx, req.Email, meta)
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating account: %w", err))
	}

	s.mailer.SendVerificationEmail(ctx, account.Email, token, account.FirstName)

	s.audit.Log(ctx, audit.Entry{
		Action:    audit.ActionSignup,
		Email:     account.Email,
		UserID:    account.ID,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})

	slog.Info("account signed up", slog.String("user_id", account.ID))

	return &MessageResult{Message: msgSignupCreated}, nil
}

// signupConflict records the precise reason but tells the caller only that
// the account could not be created.
func (s *authService) signupConflict(ctx context.Context, email string, meta RequestMeta) error {
	s.audit.Log(ctx, audit.Entry{
		Action:        audit.ActionSignup,
		Email:         email,
		IPAddress:     meta.IP,
		UserAgent:     meta.UserAgent,
		FailureReason: audit.ReasonEmailExists,
	})
	return apperror.NewConflict(msgSignupConflict)
}

// VerifyEmail consumes a verification token. A consumed token is cleared,
// so a second use reports it as invalid.
func (s *authService) VerifyEmail(ctx context.Context, token string, meta RequestMeta) (*MessageResult, error) {
	account, err := s.store.FindByVerificationToken(ctx, token)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding verification token: %w", err))
	}
	if account == nil {
		return nil, apperror.NewBadRequest(msgInvalidVerification).WithReason(apperror.ReasonInvalidToken)
	}

	if account.EmailVerificationExpires != nil && s.now().After(*account.EmailVerificationExpires) {
		return nil, apperror.NewBadRequest(msgExpiredVerification).WithReason(apperror.ReasonTokenExpired)
	}

	if err := s.store.MarkVerified(ctx, account.ID); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("marking verified: %w", err))
	}

	s.audit.Log(ctx, audit.Entry{
		Action:    audit.ActionVerifyEmail,
		Email:     account.Email,
		UserID:    account.ID,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})

	return &MessageResult{Message: msgEmailVerified}, nil
}

// ResendVerification rotates the verification token and re-sends it. The
// response is the same whether or not the account exists; only an already
// verified account gets a different message.
func (s *authService) ResendVerification(ctx context.Context, email string, meta RequestMeta) (*MessageResult, error) {
	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding account: %w", err))
	}
	if account == nil {
		return &MessageResult{Message: msgVerificationSent}, nil
	}
	if account.EmailVerified {
		return &MessageResult{Message: msgAlreadyVerified}, nil
	}

	token, expires, err := s.secrets.NewVerificationToken(s.now())
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if err := s.store.SetVerificationToken(ctx, account.ID, token, expires); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("rotating verification token: %w", err))
	}

	s.mailer.SendVerificationEmail(ctx, account.Email, token, account.FirstName)

	s.audit.Log(ctx, audit.Entry{
		Action:    audit.ActionResendVerification,
		Email:     account.Email,
		UserID:    account.ID,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})

	return &MessageResult{Message: msgVerificationSent}, nil
}

// Login verifies credentials and issues a token pair. A locked account is
// refused before the password is compared.
func (s *authService) Login(ctx context.Context, req LoginRequest, meta RequestMeta) (*AuthResult, error) {
	failure := audit.Entry{
		Action:    audit.ActionLoginFailed,
		Email:     req.Email,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}

	account, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding account: %w", err))
	}
	if account == nil {
		failure.FailureReason = audit.ReasonUserNotFound
		s.audit.Log(ctx, failure)
		return nil, invalidCredentials()
	}
	failure.UserID = account.ID

	now := s.now()
	if locked, minutes := s.lockout.Check(account.LockoutUntil, now); locked {
		failure.FailureReason = audit.ReasonAccountLocked
		s.audit.Log(ctx, failure)
		return nil, apperror.NewUnauthorized(fmt.Sprintf(msgAccountLocked, minutes)).
			WithReason(apperror.ReasonAccountLocked)
	}

	if !s.secrets.VerifyPassword(req.Password, account.PasswordHash) {
		next := s.lockout.OnFailure(account.FailedLoginAttempts, now)
		if err := s.store.UpdateFailureState(ctx, account.ID, next.Attempts, next.LockoutUntil); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("recording failed attempt: %w", err))
		}

		failure.FailureReason = audit.ReasonInvalidPassword
		failure.Metadata = map[string]any{"failedAttempts": next.Attempts}
		s.audit.Log(ctx, failure)

		if next.Locks() {
			slog.Warn("account locked after failed logins",
				slog.String("user_id", account.ID),
				slog.Int("attempts", next.Attempts),
			)
			return nil, apperror.NewUnauthorized(fmt.Sprintf(msgLockedNow, s.lockout.DurationMinutes())).
				WithReason(apperror.ReasonAccountLocked)
		}
		return nil, invalidCredentials()
	}

	// The password was right, so the counters reset even if the login is
	// refused below for an unverified email.
	if account.FailedLoginAttempts != 0 || account.LockoutUntil != nil {
		reset := s.lockout.OnSuccess()
		if err := s.store.UpdateFailureState(ctx, account.ID, reset.Attempts, reset.LockoutUntil); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("resetting failed attempts: %w", err))
		}
	}

	if !account.EmailVerified && account.Role == RoleClient {
		failure.FailureReason = audit.ReasonEmailNotVerified
		s.audit.Log(ctx, failure)
		return nil, apperror.NewUnauthorized(msgEmailNotVerified).WithReason(apperror.ReasonEmailNotVerified)
	}

	s.audit.Log(ctx, audit.Entry{
		Action:    audit.ActionLoginSuccess,
		Email:     req.Email,
		UserID:    account.ID,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})

	pair, err := s.tokens.IssuePair(ctx, account, now)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("issuing tokens: %w", err))
	}

	slog.Info("user logged in", slog.String("user_id", account.ID))

	return &AuthResult{
		User:         userView(account, false),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func invalidCredentials() error {
	return apperror.NewUnauthorized(msgInvalidCredentials).WithReason(apperror.ReasonInvalidCredentials)
}

// Refresh exchanges a stored refresh token for a new access token. The
// refresh token itself is not rotated. An expired token is deleted on use.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*AccessResult, error) {
	stored, err := s.store.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding refresh token: %w", err))
	}
	if stored == nil || stored.Account == nil {
		return nil, apperror.NewUnauthorized(msgInvalidRefresh).WithReason(apperror.ReasonInvalidRefreshToken)
	}

	now := s.now()
	if now.After(stored.ExpiresAt) {
		if err := s.tokens.RevokeRefresh(ctx, stored.ID); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("deleting expired refresh token: %w", err))
		}
		return nil, apperror.NewUnauthorized(msgExpiredRefresh).WithReason(apperror.ReasonRefreshTokenExpired)
	}

	access, err := s.tokens.IssueAccess(stored.Account, now)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return &AccessResult{AccessToken: access}, nil
}

// Logout revokes every refresh token the account holds. It succeeds even if
// the account no longer exists; only then is nothing audited.
func (s *authService) Logout(ctx context.Context, userID string, meta RequestMeta) (*MessageResult, error) {
	account, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding account: %w", err))
	}

	if err := s.tokens.RevokeAll(ctx, userID); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("revoking refresh tokens: %w", err))
	}

	if account != nil {
		s.audit.Log(ctx, audit.Entry{
			Action:    audit.ActionLogout,
			Email:     account.Email,
			UserID:    userID,
			IPAddress: meta.IP,
			UserAgent: meta.UserAgent,
			Success:   true,
		})
	}

	return &MessageResult{Message: msgLoggedOut}, nil
}

// GetCurrentUser projects the caller's account. A deleted account is
// reported as unauthorized rather than not found.
func (s *authService) GetCurrentUser(ctx context.Context, userID string) (*CurrentUser, error) {
	account, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding account: %w", err))
	}
	if account == nil {
		return nil, apperror.NewUnauthorized(msgUserNotFound).WithReason(apperror.ReasonUnauthorized)
	}

	me := &CurrentUser{
		ID:            account.ID,
		Email:         account.Email,
		FirstName:     account.FirstName,
		LastName:      account.LastName,
		Role:          account.Role,
		ClientID:      account.ClientID,
		EmailVerified: account.EmailVerified,
		CreatedAt:     account.CreatedAt,
		UpdatedAt:     account.UpdatedAt,
	}
	if account.ClientID != nil {
		client, err := s.clients.FindClient(ctx, *account.ClientID)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("finding client: %w", err))
		}
		me.Client = client
	}
	return me, nil
}

func (s *authService) ParseAccessToken(token string) (*Claims, error) {
	return s.tokens.ParseAccess(token, s.now())
}
