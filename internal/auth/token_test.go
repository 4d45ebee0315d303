package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

func TestIssueAndVerify(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	iss, err := NewIssuer("secret", 15*time.Minute, clock)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, exp, err := iss.Issue("alice", "s1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(clock.Now().Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", exp)
	}
	claims, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.PlayerID() != "alice" || claims.SessionID != "s1" || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	clock.Advance(16 * time.Minute)
	if _, err := iss.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected token_expired, got %v", err)
	}
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	iss, _ := NewIssuer("secret", time.Minute, clock)
	other, _ := NewIssuer("other", time.Minute, clock)

	token, _, err := other.Issue("alice", "s1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := iss.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid_token for wrong key, got %v", err)
	}
	if _, err := iss.Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid_token for empty token, got %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		SessionID: "s1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := iss.Verify(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg none to be rejected, got %v", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer(" ", time.Minute, nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
