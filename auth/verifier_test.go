package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-do-not-use-in-prod"

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func validClaims() Claims {
	return Claims{
		Permissions:     []string{"publish", "subscribe"},
		AllowedSubjects: []string{"messages.>"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestVerifier_Verify_Valid(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, validClaims())

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject() != "user-1" {
		t.Errorf("Subject() = %q, want user-1", claims.Subject())
	}
	if len(claims.Capabilities()) != 2 {
		t.Errorf("Capabilities() = %v, want 2 entries", claims.Capabilities())
	}
}

func TestVerifier_Verify_WrongSecret(t *testing.T) {
	token := signToken(t, validClaims())

	other := NewVerifier("a different secret")
	if _, err := other.Verify(token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestVerifier_Verify_Expired(t *testing.T) {
	v := NewVerifier(testSecret)
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token := signToken(t, claims)

	if _, err := v.Verify(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestVerifier_Verify_MissingExpiry(t *testing.T) {
	v := NewVerifier(testSecret)
	claims := validClaims()
	claims.ExpiresAt = nil
	token := signToken(t, claims)

	if _, err := v.Verify(token); err == nil {
		t.Error("expected error for missing expiry claim")
	}
}

func TestVerifier_Verify_Malformed(t *testing.T) {
	v := NewVerifier(testSecret)
	if _, err := v.Verify("not.a.token"); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestVerifier_Verify_WrongAlgorithm(t *testing.T) {
	v := NewVerifier(testSecret)
	claims := validClaims()
	token := jwt.NewWithClaims(jwt.SigningMethodHS384, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	if _, err := v.Verify(signed); err == nil {
		t.Error("expected error for unexpected signing algorithm")
	}
}

func TestClaims_PermissionSet(t *testing.T) {
	claims := Claims{
		Permissions:     []string{"publish"},
		AllowedSubjects: []string{"messages.>"},
		DenySubjects:    []string{"messages.admin"},
	}

	set := claims.PermissionSet()
	if !set.Allow("publish", "messages.user") {
		t.Error("expected allow for messages.user")
	}
	if set.Allow("publish", "messages.admin") {
		t.Error("expected deny for messages.admin")
	}
	if set.Allow("subscribe", "messages.user") {
		t.Error("expected deny for capability not granted")
	}
}
