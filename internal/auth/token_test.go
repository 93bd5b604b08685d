package auth

import (
	"errors"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestIssueParseRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	in := Principal{SubjectID: "user-1", Name: "Wanjiru", Email: "w@example.com", Role: RoleAdmin}

	token, exp, err := tm.Issue(in)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry %v is not in the future", exp)
	}

	got, err := tm.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got != in {
		t.Fatalf("principal mismatch: got %+v", got)
	}
	if !got.IsAdmin() {
		t.Fatal("admin role not recognised")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager("a", time.Hour).Issue(Principal{SubjectID: "user-1"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := NewTokenManager("b", time.Hour).Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewTokenManager("s", time.Hour).Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsMissingSubject(t *testing.T) {
	token, _, err := NewTokenManager("s", time.Hour).Issue(Principal{Role: "client"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := NewTokenManager("s", time.Hour).Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
