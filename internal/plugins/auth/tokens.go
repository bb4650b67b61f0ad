package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTTL is the lifetime of a signed access token (900 s).
const DefaultAccessTTL = 15 * time.Minute

var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrExpiredAccessToken = errors.New("access token expired")
)

// Claims is the access token payload: sub, email, role, iat, exp.
type Claims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenPair is an access token plus a freshly persisted refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenIssuer signs HS256 access tokens and mints, persists, and revokes
// opaque refresh tokens. The store is the single source of truth for
// refresh tokens.
type TokenIssuer struct {
	secret    []byte
	accessTTL time.Duration
	store     CredentialStore
	secrets   *SecretGenerator
}

// NewTokenIssuer creates an issuer signing with secret.
func NewTokenIssuer(secret string, accessTTL time.Duration, store CredentialStore, secrets *SecretGenerator) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	return &TokenIssuer{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		store:     store,
		secrets:   secrets,
	}
}

// IssueAccess signs an access token for the account.
func (t *TokenIssuer) IssueAccess(a *Account, now time.Time) (string, error) {
	claims := &Claims{
		Email: a.Email,
		Role:  a.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// IssuePair signs an access token and persists a new refresh token.
func (t *TokenIssuer) IssuePair(ctx context.Context, a *Account, now time.Time) (*TokenPair, error) {
	access, err := t.IssueAccess(a, now)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := t.secrets.NewRefreshToken(now)
	if err != nil {
		return nil, err
	}

	rt := &RefreshToken{
		ID:        uuid.NewString(),
		Token:     token,
		UserID:    a.ID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := t.store.CreateRefreshToken(ctx, rt); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: token}, nil
}

// ParseAccess verifies signature and expiry of a bearer token.
func (t *TokenIssuer) ParseAccess(tokenString string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidAccessToken
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// RevokeRefresh deletes a single refresh token row.
func (t *TokenIssuer) RevokeRefresh(ctx context.Context, id string) error {
	return t.store.DeleteRefreshToken(ctx, id)
}

// RevokeAll deletes every refresh token belonging to userID.
func (t *TokenIssuer) RevokeAll(ctx context.Context, userID string) error {
	return t.store.DeleteAllRefreshTokens(ctx, userID)
}
