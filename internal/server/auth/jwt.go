// Package auth issues and validates the stateless session tokens clients
// present to the broker.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gsheetsmcp/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenValidity is the fixed lifetime of an issued session token.
const SessionTokenValidity = 30 * 24 * time.Hour

// Claims carried by a session token, next to the registered iat and exp.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type TokenService struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

type Option func(*TokenService)

// WithClock overrides the time source used for iat, exp and validation.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService returns common.ErrSigningKeyUnavailable for an empty secret.
func NewTokenService(secret string, opts ...Option) (*TokenService, error) {
	if secret == "" {
		return nil, common.ErrSigningKeyUnavailable
	}

	s := &TokenService{
		secret:   []byte(secret),
		validity: SessionTokenValidity,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Issue signs a token for the user, valid from now for SessionTokenValidity.
func (s *TokenService) Issue(userID, email string) (string, error) {
	now := s.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.validity)),
		},
		UserID: userID,
		Email:  email,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature and expiry. It returns common.ErrTokenExpired
// once now reaches exp, and common.ErrTokenInvalid for everything else:
// bad signature, wrong algorithm, malformed input, missing claims. The
// signature is verified before expiry, so a token signed with another key
// is reported invalid even when it is also expired.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrTokenInvalid, err)
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id", common.ErrTokenInvalid)
	}

	return claims, nil
}
