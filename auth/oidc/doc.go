// Package oidc talks OpenID Connect to a single realm of a Keycloak-style
// identity provider.
//
// Provider runs the token grants (password, authorization code, refresh,
// client credentials) on golang.org/x/oauth2 and revokes sessions at the
// logout endpoint. Verifier checks access and ID tokens against the realm's
// discovered JWKS using golang-jwt. Both send every request through an
// httpclient.Client so TLS, rate limiting and the circuit breaker apply.
//
// Usage:
//
//	hc, _ := httpclient.New(httpclient.Config{Timeout: 10 * time.Second})
//	p, err := oidc.NewProvider(cfg, hc)
//	tr, err := p.PasswordToken(ctx, "alice", "secret")
//	claims, err := oidc.NewVerifier(cfg, hc).Verify(ctx, tr.AccessToken)
//
//	state, _ := oidc.GenerateState()
//	pkce, _ := oidc.NewPKCE()
//	redirect := p.AuthURL(callbackURL, state, oidc.WithPKCE(pkce))
package oidc
