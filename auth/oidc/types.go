package oidc

import (
	"slices"
	"time"
)

// TokenResult holds the tokens returned from a token endpoint grant.
type TokenResult struct {
	// AccessToken is the OAuth2 access token.
	AccessToken string

	// RefreshToken is the OAuth2 refresh token (may be empty).
	RefreshToken string

	// IDToken is the raw OIDC ID token JWT string (may be empty).
	IDToken string

	// TokenType is typically "Bearer".
	TokenType string

	// ExpiresIn is the access token lifetime declared by the provider.
	ExpiresIn time.Duration

	// RefreshExpiresIn is the refresh token lifetime declared by the provider.
	// Zero when the provider did not say.
	RefreshExpiresIn time.Duration

	// Scopes are the granted scopes (may differ from requested).
	Scopes []string
}

// Claims is a verified token's payload.
type Claims struct {
	// Issuer is the "iss" claim.
	Issuer string

	// Subject is the "sub" claim (provider's unique user ID).
	Subject string

	// Audience is the "aud" claim.
	Audience []string

	// AuthorizedParty is the "azp" claim, the client the token was issued to.
	AuthorizedParty string

	// PreferredUsername is the "preferred_username" claim.
	PreferredUsername string

	// ExpiresAt is the "exp" claim.
	ExpiresAt time.Time

	// IssuedAt is the "iat" claim.
	IssuedAt time.Time

	// Raw holds every claim for callers that need provider-specific ones.
	Raw map[string]any
}

// Username returns preferred_username, falling back to sub.
func (c *Claims) Username() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Subject
}

// IssuedTo reports whether the token was issued for clientID, either as
// an audience or as the authorized party.
func (c *Claims) IssuedTo(clientID string) bool {
	return c.AuthorizedParty == clientID || slices.Contains(c.Audience, clientID)
}

// Claim returns a claim as a string, or "" when absent or not a string.
func (c *Claims) Claim(name string) string {
	v, _ := c.Raw[name].(string)
	return v
}
