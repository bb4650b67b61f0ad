package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ErrEmailTaken is returned by CreateAccount when the unique email index
// rejects the insert.
var ErrEmailTaken = errors.New("email already registered")

// mysqlDuplicateEntry is the MariaDB error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// CredentialStore is the persistence contract for accounts and refresh
// tokens. Lookups return (nil, nil) when nothing matches; only store
// failures are errors. All SQL lives in the concrete implementation.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByVerificationToken(ctx context.Context, token string) (*Account, error)
	FindByRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	CreateAccount(ctx context.Context, account *Account) error

	UpdateFailureState(ctx context.Context, id string, attempts int, lockoutUntil *time.Time) error
	MarkVerified(ctx context.Context, id string) error
	SetVerificationToken(ctx context.Context, id, token string, expiresAt time.Time) error

	CreateRefreshToken(ctx context.Context, token *RefreshToken) error
	DeleteRefreshToken(ctx context.Context, id string) error
	DeleteAllRefreshTokens(ctx context.Context, userID string) error
}

// accountColumns is the select list matching scanAccount.
const accountColumns = `u.id, u.email, u.password_hash, u.first_name, u.last_name, u.role,
	u.client_id, u.email_verified, u.email_verification_token, u.email_verification_expires,
	u.failed_login_attempts, u.lockout_until, u.terms_accepted_at, u.created_at, u.updated_at`

// credentialStore implements CredentialStore with hand-written MariaDB queries.
type credentialStore struct {
	db *sql.DB
}

// NewCredentialStore creates a credential store backed by the given DB pool.
func NewCredentialStore(db *sql.DB) CredentialStore {
	return &credentialStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, extra ...any) (*Account, error) {
	a := &Account{}
	dest := []any{
		&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName, &a.Role,
		&a.ClientID, &a.EmailVerified, &a.EmailVerificationToken, &a.EmailVerificationExpires,
		&a.FailedLoginAttempts, &a.LockoutUntil, &a.TermsAcceptedAt, &a.CreatedAt, &a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return a, nil
}

// findAccount runs a single-row account query. No match is (nil, nil).
func (s *credentialStore) findAccount(ctx context.Context, where, arg, label string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users u WHERE ` + where
	a, err := scanAccount(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying account by %s: %w", label, err)
	}
	return a, nil
}

// FindByEmail matches the stored email exactly (binary collation).
func (s *credentialStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.findAccount(ctx, "u.email = ?", email, "email")
}

func (s *credentialStore) FindByID(ctx context.Context, id string) (*Account, error) {
	return s.findAccount(ctx, "u.id = ?", id, "id")
}

func (s *credentialStore) FindByVerificationToken(ctx context.Context, token string) (*Account, error) {
	return s.findAccount(ctx, "u.email_verification_token = ?", token, "verification token")
}

// FindByRefreshToken returns the token row joined with its owning account.
func (s *credentialStore) FindByRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	query := `SELECT ` + accountColumns + `, rt.id, rt.token, rt.user_id, rt.expires_at, rt.created_at
	          FROM refresh_tokens rt
	          JOIN users u ON u.id = rt.user_id
	          WHERE rt.token = ?`

	rt := &RefreshToken{}
	a, err := scanAccount(s.db.QueryRowContext(ctx, query, token),
		&rt.ID, &rt.Token, &rt.UserID, &rt.ExpiresAt, &rt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying refresh token: %w", err)
	}
	rt.Account = a
	return rt, nil
}

// CreateAccount inserts a new account. A duplicate email yields ErrEmailTaken.
func (s *credentialStore) CreateAccount(ctx context.Context, a *Account) error {
	query := `INSERT INTO users (id, email, password_hash, first_name, last_name, role, client_id,
	                             email_verified, email_verification_token, email_verification_expires,
	                             failed_login_attempts, lockout_until, terms_accepted_at, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Email, a.PasswordHash, a.FirstName, a.LastName, string(a.Role), a.ClientID,
		a.EmailVerified, a.EmailVerificationToken, a.EmailVerificationExpires,
		a.FailedLoginAttempts, a.LockoutUntil, a.TermsAcceptedAt, a.CreatedAt, a.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// UpdateFailureState overwrites both lockout counters.
func (s *credentialStore) UpdateFailureState(ctx context.Context, id string, attempts int, lockoutUntil *time.Time) error {
	query := `UPDATE users SET failed_login_attempts = ?, lockout_until = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, attempts, lockoutUntil, id); err != nil {
		return fmt.Errorf("updating failure state: %w", err)
	}
	return nil
}

// MarkVerified sets email_verified and clears the token and its expiry in
// one statement so they never diverge.
func (s *credentialStore) MarkVerified(ctx context.Context, id string) error {
	query := `UPDATE users
	          SET email_verified = TRUE, email_verification_token = NULL, email_verification_expires = NULL
	          WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("marking account verified: %w", err)
	}
	return nil
}

func (s *credentialStore) SetVerificationToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	query := `UPDATE users SET email_verification_token = ?, email_verification_expires = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, token, expiresAt, id); err != nil {
		return fmt.Errorf("setting verification token: %w", err)
	}
	return nil
}

func (s *credentialStore) CreateRefreshToken(ctx context.Context, rt *RefreshToken) error {
	query := `INSERT INTO refresh_tokens (id, token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, rt.ID, rt.Token, rt.UserID, rt.ExpiresAt, rt.CreatedAt); err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}
	return nil
}

// DeleteRefreshToken is a no-op when the row is already gone.
func (s *credentialStore) DeleteRefreshToken(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return nil
}

func (s *credentialStore) DeleteAllRefreshTokens(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting refresh tokens: %w", err)
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
