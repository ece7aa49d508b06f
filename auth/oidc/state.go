package oidc

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"io"
)

// GenerateState returns a random value for the authorization request's
// state parameter. It is URL-safe and 43 characters long.
func GenerateState() (string, error) {
	return randomToken(32)
}

// StateMatches compares a returned state with the one stored before the
// redirect in constant time. An empty expected state never matches.
func StateMatches(expected, got string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// PKCE holds a code verifier and its S256 challenge. The challenge goes in
// the authorization URL and the verifier in the code exchange.
type PKCE struct {
	CodeVerifier        string
	CodeChallenge       string
	CodeChallengeMethod string
}

// NewPKCE generates a verifier/challenge pair using the S256 method.
func NewPKCE() (*PKCE, error) {
	verifier, err := randomToken(32)
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256([]byte(verifier))
	return &PKCE{
		CodeVerifier:        verifier,
		CodeChallenge:       base64.RawURLEncoding.EncodeToString(h[:]),
		CodeChallengeMethod: "S256",
	}, nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
