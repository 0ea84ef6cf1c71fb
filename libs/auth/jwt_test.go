package auth

import (
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := Claims{
		Sub:  "user-1",
		Role: RoleUser,
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(1 * time.Hour).Unix(),
	}
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	claims := Claims{
		Sub:  "driver-1",
		Role: RoleDriver,
		Iat:  time.Now().Add(-2 * time.Hour).Unix(),
		Exp:  time.Now().Add(-1 * time.Hour).Unix(),
	}
	token, err := SignHS256(claims, "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestIdentity(t *testing.T) {
	id, err := (&Claims{Sub: "d-9", Role: "driver"}).Identity()
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	if id.Role != RoleDriver || id.ID != "d-9" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	if _, err := (&Claims{Sub: "x", Role: "admin"}).Identity(); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
	if _, err := (&Claims{Role: RoleUser}).Identity(); err == nil {
		t.Fatal("expected empty subject to be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	if got := BearerToken("Bearer abc.def.ghi"); got != "abc.def.ghi" {
		t.Fatalf("unexpected token: %q", got)
	}
	if got := BearerToken("abc.def.ghi"); got != "abc.def.ghi" {
		t.Fatalf("unexpected raw token: %q", got)
	}
}
