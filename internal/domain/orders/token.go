package orders

import (
	"errors"
	"time"
)

// Token validation errors.
var (
	ErrTokenEmpty   = errors.New("token cannot be empty")
	ErrTokenExpired = errors.New("access token has expired")
)

// DefaultExpiryBuffer is how long before expiry a token is considered stale.
const DefaultExpiryBuffer = 5 * time.Minute

// DefaultTokenLifetime applies when the login response carries no expiry.
const DefaultTokenLifetime = time.Hour

// Token is a bearer token issued by the partner login endpoint.
type Token struct {
	accessToken string
	expiresAt   time.Time
}

// NewToken creates a new Token value object.
func NewToken(accessToken string, expiresAt time.Time) (*Token, error) {
	if accessToken == "" {
		return nil, ErrTokenEmpty
	}

	return &Token{
		accessToken: accessToken,
		expiresAt:   expiresAt,
	}, nil
}

// AccessToken returns the access token string.
func (t *Token) AccessToken() string {
	return t.accessToken
}

// ExpiresAt returns the expiration time.
func (t *Token) ExpiresAt() time.Time {
	return t.expiresAt
}

// IsExpired returns true if the token has expired at now.
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.expiresAt)
}

// NeedsRefresh returns true if the token expires within buffer of now.
func (t *Token) NeedsRefresh(now time.Time, buffer time.Duration) bool {
	return now.Add(buffer).After(t.expiresAt)
}

// TimeUntilExpiry returns the duration until the token expires.
func (t *Token) TimeUntilExpiry(now time.Time) time.Duration {
	return t.expiresAt.Sub(now)
}

// Validate checks if the token is usable at now.
func (t *Token) Validate(now time.Time) error {
	if t.accessToken == "" {
		return ErrTokenEmpty
	}
	if t.IsExpired(now) {
		return ErrTokenExpired
	}
	return nil
}
