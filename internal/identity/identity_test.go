package identity

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-jwt-signing-minimum-32-bytes")

func TestSignParse_RoundTrip(t *testing.T) {
	now := time.Now()
	for _, actor := range []Actor{
		{EmployeeID: "emp-1"},
		{EmployeeID: "hr-admin", IsAdmin: true},
	} {
		token, err := Sign(testSecret, actor, time.Hour, now)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		if parts := strings.Split(token, "."); len(parts) != 3 {
			t.Fatalf("token has %d parts, want 3", len(parts))
		}
		got, err := Parse(testSecret, token)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if got != actor {
			t.Errorf("Parse() = %+v, want %+v", got, actor)
		}
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := Parse(testSecret, ""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("err = %v, want ErrEmptyToken", err)
	}
}

func TestParse_WrongSecret(t *testing.T) {
	token, _ := Sign(testSecret, Actor{EmployeeID: "emp-1"}, time.Hour, time.Now())
	if _, err := Parse([]byte("another-secret"), token); err == nil {
		t.Error("expected signature error")
	}
}

func TestParse_Expired(t *testing.T) {
	token, _ := Sign(testSecret, Actor{EmployeeID: "emp-1"}, time.Minute, time.Now().Add(-time.Hour))
	_, err := Parse(testSecret, token)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestParse_NoSubject(t *testing.T) {
	token, _ := Sign(testSecret, Actor{}, time.Hour, time.Now())
	if _, err := Parse(testSecret, token); !errors.Is(err, ErrNoSubject) {
		t.Errorf("err = %v, want ErrNoSubject", err)
	}
}

func TestParse_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "emp-1"}})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := Parse(testSecret, signed); err == nil {
		t.Error("expected unsigned token to be rejected")
	}
}
