package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost is the fixed work factor for password hashes.
	DefaultBcryptCost = 10

	// verificationTokenBytes is 256 bits of entropy, hex-encoded to 64 chars.
	verificationTokenBytes = 32

	maxBcryptBytes = 72

	DefaultVerificationTTL = 24 * time.Hour
	DefaultRefreshTTL      = 7 * 24 * time.Hour
)

// SecretGenerator hashes passwords and mints verification and refresh
// secrets. Random bytes come from crypto/rand unless a reader is injected.
type SecretGenerator struct {
	cost            int
	verificationTTL time.Duration
	refreshTTL      time.Duration
	random          io.Reader
}

// NewSecretGenerator creates a generator. Non-positive arguments fall back
// to the defaults.
func NewSecretGenerator(cost int, verificationTTL, refreshTTL time.Duration) *SecretGenerator {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	if verificationTTL <= 0 {
		verificationTTL = DefaultVerificationTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &SecretGenerator{
		cost:            cost,
		verificationTTL: verificationTTL,
		refreshTTL:      refreshTTL,
		random:          rand.Reader,
	}
}

// HashPassword returns a salted bcrypt hash of password.
func (g *SecretGenerator) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), g.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. A malformed hash is
// treated as a mismatch.
func (g *SecretGenerator) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password)) == nil
}

// bcryptInput truncates to the 72 bytes bcrypt actually reads; longer
// inputs are rejected by GenerateFromPassword otherwise.
func bcryptInput(password string) []byte {
	b := []byte(password)
	if len(b) > maxBcryptBytes {
		b = b[:maxBcryptBytes]
	}
	return b
}

// NewVerificationToken returns a 64-character hex token and its expiry.
func (g *SecretGenerator) NewVerificationToken(now time.Time) (string, time.Time, error) {
	b := make([]byte, verificationTokenBytes)
	if _, err := io.ReadFull(g.random, b); err != nil {
		return "", time.Time{}, fmt.Errorf("generating verification token: %w", err)
	}
	return hex.EncodeToString(b), now.Add(g.verificationTTL), nil
}

// NewRefreshToken returns a random UUID refresh token and its expiry.
func (g *SecretGenerator) NewRefreshToken(now time.Time) (string, time.Time, error) {
	id, err := uuid.NewRandomFromReader(g.random)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generating refresh token: %w", err)
	}
	return id.String(), now.Add(g.refreshTTL), nil
}
