package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/deliverydesk-backend/pkg/config"
)

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "deliverydesk"}
	userID := uuid.New()

	token, err := MintAccessToken(cfg, time.Now().UTC(), time.Hour, userID, "ada@example.com")
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	got, err := claims.UserID()
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	if got != userID {
		t.Fatalf("expected user %s, got %s", userID, got)
	}
	if claims.Email != "ada@example.com" {
		t.Fatalf("unexpected email %q", claims.Email)
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret"}
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), time.Hour, uuid.New(), "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseAccessTokenRejectsWrongSecretAndIssuer(t *testing.T) {
	token, err := MintAccessToken(config.JWTConfig{Secret: "one", Issuer: "a"}, time.Now(), time.Hour, uuid.New(), "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(config.JWTConfig{Secret: "two", Issuer: "a"}, token); err == nil {
		t.Fatal("expected signature mismatch")
	}
	if _, err := ParseAccessToken(config.JWTConfig{Secret: "one", Issuer: "b"}, token); err == nil {
		t.Fatal("expected issuer mismatch")
	}
	if _, err := ParseAccessToken(config.JWTConfig{Secret: "one"}, token); err != nil {
		t.Fatalf("issuer should be ignored when not configured: %v", err)
	}
}

func TestParseAccessTokenRequiresUUIDSubject(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAccessToken(config.JWTConfig{Secret: "secret"}, token); err == nil {
		t.Fatal("expected non-uuid subject to be rejected")
	}
}
