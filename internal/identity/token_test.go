package identity

import (
	"errors"
	"testing"
	"time"
)

func TestTokenSignerMintAndParse(t *testing.T) {
	signer, err := NewTokenSigner("unit-test-secret", "crewgate-test")
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}

	principal := Principal{
		UserID:   "usr-1",
		Username: "alice",
		Email:    "alice@co.com",
		Access: []TenantAccess{{
			TenantID:    "tnt-1",
			TenantName:  "Attendance",
			Domain:      "attendance",
			RoleName:    "Manager",
			Permissions: []string{"attendance.view", "leave.approve"},
		}},
	}

	token, exp, err := signer.Mint(principal, 30*time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiration, got %v", exp)
	}

	claims, err := signer.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "usr-1" || claims.Email != "alice@co.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Access) != 1 || claims.Access[0].RoleName != "Manager" {
		t.Fatalf("access claim lost: %+v", claims.Access)
	}
	if len(claims.Access[0].Permissions) != 2 {
		t.Fatalf("permissions lost: %v", claims.Access[0].Permissions)
	}
}

func TestTokenSignerRejectsExpired(t *testing.T) {
	signer, err := NewTokenSigner("unit-test-secret", "crewgate-test")
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}
	issued := time.Now().Add(-time.Hour)
	signer.now = func() time.Time { return issued }

	token, _, err := signer.Mint(Principal{UserID: "usr-1"}, 10*time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	signer.now = time.Now
	if _, err := signer.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenSignerRejectsForeignIssuer(t *testing.T) {
	minting, _ := NewTokenSigner("unit-test-secret", "other-service")
	verifying, _ := NewTokenSigner("unit-test-secret", "crewgate-test")

	token, _, err := minting.Mint(Principal{UserID: "usr-1"}, time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := verifying.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}
}

func TestTokenSignerRejectsWrongSecret(t *testing.T) {
	minting, _ := NewTokenSigner("secret-a", "crewgate-test")
	verifying, _ := NewTokenSigner("secret-b", "crewgate-test")

	token, _, err := minting.Mint(Principal{UserID: "usr-1"}, time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := verifying.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestTokenSignerRejectsGarbage(t *testing.T) {
	signer, _ := NewTokenSigner("unit-test-secret", "crewgate-test")
	for _, raw := range []string{"", "  ", "a.b", "a.b.c.d", "not a token"} {
		if _, err := signer.Parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", raw, err)
		}
	}
}
