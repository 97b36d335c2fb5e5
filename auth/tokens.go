/*
Package auth issues and checks credentials: bearer tokens, password hashes
and single-use reset tokens.

TOKENS:
  HS256 JWTs carrying the user id and role. They live for seven days. The
  API re-reads the user on every request, so the role claim is informational
  and a role change takes effect immediately.

RESETS:
  A reset token is a UUID stored through loyalty.ResetTokenStore. Issuing one
  retires the user's older tokens. Requests are rate limited per client IP
  and utorid by a Cooldown.

SEE ALSO:
  - api/middleware.go: turns a bearer token into a loyalty.Actor
  - account/service.go: issues the activation token at registration
*/
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/campus/rewards-engine/loyalty"
)

// TokenTTL is the lifetime of a login token.
const TokenTTL = 7 * 24 * time.Hour

// Claims are the JWT claims of a login token.
type Claims struct {
	UserID int64  `json:"id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies login tokens with a shared secret.
type Tokens struct {
	secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), TTL: TokenTTL, Now: time.Now}
}

// Issue returns a signed token for u and its expiry.
func (t *Tokens) Issue(u loyalty.User) (string, time.Time, error) {
	now := t.Now()
	claims := Claims{
		UserID: u.ID,
		Role:   u.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Utorid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.TTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Parse verifies raw and returns its claims. Any failure wraps
// loyalty.ErrUnauthorized.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", loyalty.ErrUnauthorized, err)
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: token has no user", loyalty.ErrUnauthorized)
	}
	return claims, nil
}
