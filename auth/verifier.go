package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bowber/mottomesh/errors"
)

// Verifier validates tokens signed with a single shared HS256 secret,
// configured once at process start.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier bound to secret. secret must be
// non-empty; callers load it from JWT_SECRET at startup.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates tokenStr, returning its claims on success.
// Any failure — bad signature, malformed structure, missing or invalid
// claims, or an expiry in the past relative to the host wall clock — comes
// back as a single classified invalid error a session maps to AuthError.
func (v *Verifier) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrAuthFailed, "auth", "Verify", err.Error())
	}
	if !token.Valid {
		return nil, errors.WrapInvalid(errors.ErrAuthFailed, "auth", "Verify", "token invalid")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, errors.WrapInvalid(errors.ErrAuthFailed, "auth", "Verify", "missing expiry claim")
	}
	if !exp.Time.After(time.Now()) {
		return nil, errors.WrapInvalid(errors.ErrTokenExpired, "auth", "Verify", "token expired")
	}

	return claims, nil
}
