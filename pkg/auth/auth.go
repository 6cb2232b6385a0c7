// Package auth implements dashboard user authentication: bcrypt credential
// verification and JWT session tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Common errors.
var (
	// ErrInvalidCredentials is returned for a wrong username or password.
	// Deliberately indistinguishable between the two.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned for unparseable, tampered, or expired tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// DefaultTokenTTL is the session token lifetime.
const DefaultTokenTTL = 2 * time.Hour

// Claims are the session token claims.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Authenticator verifies dashboard credentials and manages session tokens.
type Authenticator struct {
	username     string
	passwordHash []byte
	secret       []byte
	tokenTTL     time.Duration
}

// Config holds authenticator configuration.
type Config struct {
	// Username is the single admin username.
	Username string

	// PasswordHash is the bcrypt hash of the admin password.
	PasswordHash string

	// JWTSecret signs session tokens (HS256).
	JWTSecret string

	// TokenTTL is the session lifetime (default: 2h).
	TokenTTL time.Duration
}

// New creates an authenticator.
func New(cfg Config) (*Authenticator, error) {
	if cfg.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if cfg.PasswordHash == "" {
		return nil, fmt.Errorf("password hash is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}

	return &Authenticator{
		username:     cfg.Username,
		passwordHash: []byte(cfg.PasswordHash),
		secret:       []byte(cfg.JWTSecret),
		tokenTTL:     cfg.TokenTTL,
	}, nil
}

// Login verifies the credentials and issues a session token.
func (a *Authenticator) Login(username, password string) (string, error) {
	if username != a.username {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Verify parses and validates a session token.
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// HashPassword produces a bcrypt hash for ADMIN_PASSWORD_HASH. Exposed for
// operator tooling and tests.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
