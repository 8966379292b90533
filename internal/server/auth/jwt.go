// Package auth verifies the HS256 bearer tokens that identify the calling
// user on the REST API. Tokens are minted by the account service; Sign exists
// for tooling and tests.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway absorbs clock skew between the account service and us.
const DefaultLeeway = 30 * time.Second

// Claims is the token payload. The user normally travels in sub; older
// tokens only carry uid.
type Claims struct {
	jwt.RegisteredClaims
	LegacyUserID string `json:"uid,omitempty"`
}

func (c *Claims) userID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.LegacyUserID
}

type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret []byte, leeway time.Duration) *Verifier {
	return &Verifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
	}
}

// UserID returns the user a valid token was issued to. Expired tokens yield
// common.ErrTokenExpired, everything else common.ErrInvalidToken.
func (v *Verifier) UserID(raw string) (string, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", common.ErrTokenExpired
	case err != nil:
		return "", common.ErrInvalidToken
	}

	id := claims.userID()
	if id == "" {
		return "", common.ErrInvalidToken
	}
	return id, nil
}

// Sign mints a token for userID that expires after ttl.
func Sign(userID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}).SignedString(secret)
}
