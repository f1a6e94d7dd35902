// Package auth issues and validates session tokens for the bookmark API.
package auth

import (
	"bookmark-manager/pkg/types"
	"errors"
	"fmt"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTTL           = 24 * time.Hour
	DefaultRefreshWindow = 6 * time.Hour

	issuerName = "bookmarks"
)

var (
	ErrMissingToken = errors.New("missing session token")
	ErrInvalidToken = errors.New("invalid session token")
	ErrNoSecret     = errors.New("token secret is required")
)

// Claims are the contents of a session token. The subject is the user id.
type Claims struct {
	Email string `json:"email"`
	gojwt.RegisteredClaims
}

// User returns the session identity carried by the token
func (c *Claims) User() types.User {
	return types.User{ID: c.Subject, Email: c.Email}
}

type Config struct {
	Secret string

	// TTL is the lifetime of an issued token (default: 24h)
	TTL time.Duration

	// RefreshWindow is how close to expiry a token must be before it is re-issued
	RefreshWindow time.Duration

	// Now overrides the clock
	Now func() time.Time
}

// Issuer signs and verifies HS256 session tokens
type Issuer struct {
	secret        []byte
	ttl           time.Duration
	refreshWindow time.Duration
	now           func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // token id -> expiry
}

func NewIssuer(config Config) (*Issuer, error) {
	if config.Secret == "" {
		return nil, ErrNoSecret
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.RefreshWindow <= 0 {
		config.RefreshWindow = DefaultRefreshWindow
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Issuer{
		secret:        []byte(config.Secret),
		ttl:           config.TTL,
		refreshWindow: config.RefreshWindow,
		now:           config.Now,
		revoked:       make(map[string]time.Time),
	}, nil
}

// Issue creates a signed token for user
func (i *Issuer) Issue(user types.User) (string, error) {
	now := i.now()
	claims := Claims{
		Email: user.Email,
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuerName,
			Subject:   user.ID,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies token and returns its claims
func (i *Issuer) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	_, err := gojwt.ParseWithClaims(token, claims,
		func(*gojwt.Token) (interface{}, error) { return i.secret, nil },
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(issuerName),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	if i.isRevoked(claims.ID) {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	return claims, nil
}

// NeedsRefresh reports whether claims expire within the refresh window
func (i *Issuer) NeedsRefresh(claims *Claims) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Time.Sub(i.now()) <= i.refreshWindow
}

// Revoke invalidates a token until it would have expired anyway
func (i *Issuer) Revoke(claims *Claims) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	for id, exp := range i.revoked {
		if !exp.After(now) {
			delete(i.revoked, id)
		}
	}
	if claims.ExpiresAt != nil {
		i.revoked[claims.ID] = claims.ExpiresAt.Time
	}
}

func (i *Issuer) isRevoked(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.revoked[id]
	return ok
}
