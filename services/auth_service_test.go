package services

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"safewalk-api/config"
)

func newTestAuthService() *AuthService {
	return NewAuthService(config.JWTConfig{
		Secret:      "test-secret-key",
		ExpiryHours: 24,
	})
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := newTestAuthService()

	token, err := svc.GenerateToken(1, "walker@test.com", "user")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("token should not be empty")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != 1 {
		t.Errorf("UserID = %d, want 1", claims.UserID)
	}
	if claims.Email != "walker@test.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "walker@test.com")
	}
	if claims.Role != "user" {
		t.Errorf("Role = %q, want %q", claims.Role, "user")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		t.Error("ExpiresAt and IssuedAt should be set")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	svc := newTestAuthService()

	_, err := svc.ValidateToken("invalid.token.string")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc1 := NewAuthService(config.JWTConfig{Secret: "secret-1", ExpiryHours: 24})
	svc2 := NewAuthService(config.JWTConfig{Secret: "secret-2", ExpiryHours: 24})

	token, _ := svc1.GenerateToken(1, "walker@test.com", "user")

	if _, err := svc2.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateTokenExpired(t *testing.T) {
	svc := newTestAuthService()

	claims := Claims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = svc.ValidateToken(token)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("err = %v, want jwt.ErrTokenExpired", err)
	}
}

func TestValidateTokenRejectsOtherAlgorithms(t *testing.T) {
	svc := newTestAuthService()

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("expected unsigned token to be rejected")
	}
}

func TestAuthEnabled(t *testing.T) {
	if !newTestAuthService().Enabled() {
		t.Error("service with a secret should be enabled")
	}
	if NewAuthService(config.JWTConfig{}).Enabled() {
		t.Error("service without a secret should be disabled")
	}
}
