package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure kinds. The session handler collapses all three to the
// same client-facing payload; the distinction exists for logging and metrics.
var (
	ErrExpired   = errors.New("token expired")
	ErrInvalid   = errors.New("token invalid")
	ErrMalformed = errors.New("token missing identity claim")
)

// Claims is the claim set wsgate requires in every client token.
// The identity is carried in the "email" field; expiry is mandatory.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier validates RS256-signed bearer tokens against a single public key.
// It holds no mutable state and is safe for concurrent use.
type Verifier struct {
	publicKey *rsa.PublicKey
}

func NewVerifier(publicKey *rsa.PublicKey) *Verifier {
	return &Verifier{publicKey: publicKey}
}

// NewVerifierFromFile loads a PEM-encoded RSA public key from disk.
func NewVerifierFromFile(path string) (*Verifier, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return NewVerifier(key), nil
}

// Verify checks the token signature, algorithm and expiry, and extracts the
// identity. Returns the identity string or one of ErrExpired, ErrInvalid,
// ErrMalformed.
func (v *Verifier) Verify(token []byte) (string, error) {
	parsed, err := jwt.ParseWithClaims(
		string(token),
		&Claims{},
		func(t *jwt.Token) (interface{}, error) {
			return v.publicKey, nil
		},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpired
		}
		// Wrong key, wrong algorithm, structural corruption - the client
		// gets the same rejection either way.
		return "", ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrInvalid
	}
	if claims.Email == "" {
		return "", ErrMalformed
	}

	return claims.Email, nil
}
