package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key failed: %v", err)
	}
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.Claims) []byte {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token failed: %v", err)
	}
	return []byte(token)
}

func TestVerifyValidToken(t *testing.T) {
	key := newTestKey(t)
	v := NewVerifier(&key.PublicKey)

	token := signToken(t, key, Claims{
		Email: "a@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if identity != "a@example.com" {
		t.Fatalf("expected identity a@example.com, got %q", identity)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	key := newTestKey(t)
	v := NewVerifier(&key.PublicKey)

	token := signToken(t, key, Claims{
		Email: "a@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	if _, err := v.Verify(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	signing := newTestKey(t)
	other := newTestKey(t)
	v := NewVerifier(&other.PublicKey)

	token := signToken(t, signing, Claims{
		Email: "a@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestVerifyWrongAlgorithm(t *testing.T) {
	key := newTestKey(t)
	v := NewVerifier(&key.PublicKey)

	// HS256 token signed with an arbitrary shared secret must be rejected
	// even before signature validation.
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: "a@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign token failed: %v", err)
	}

	if _, err := v.Verify([]byte(token)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestVerifyGarbageToken(t *testing.T) {
	key := newTestKey(t)
	v := NewVerifier(&key.PublicKey)

	if _, err := v.Verify([]byte("not-a-jwt")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestVerifyMissingIdentityClaim(t *testing.T) {
	key := newTestKey(t)
	v := NewVerifier(&key.PublicKey)

	token := signToken(t, key, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := v.Verify(token); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestVerifyMissingExpiry(t *testing.T) {
	key := newTestKey(t)
	v := NewVerifier(&key.PublicKey)

	token := signToken(t, key, Claims{Email: "a@example.com"})

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestVerifyIsConcurrencySafe(t *testing.T) {
	key := newTestKey(t)
	v := NewVerifier(&key.PublicKey)

	token := signToken(t, key, Claims{
		Email: "a@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := v.Verify(token)
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent verify failed: %v", err)
		}
	}
}
