// Package httpclient is the outbound HTTP layer used to reach the identity
// provider: token endpoint, logout endpoint, and the admin directory API.
//
// Every request is bounded by the configured timeout on top of the caller's
// context and passes through an optional rate limiter and circuit breaker.
// The same guards apply to libraries that are handed Client.Unwrap().
//
// # Basic Usage
//
//	client, err := httpclient.New(httpclient.Config{
//	    Timeout:        10 * time.Second,
//	    CircuitBreaker: httpclient.DefaultCircuitBreakerConfig("keycloak"),
//	})
//
//	resp, err := client.Get(ctx, usersURL, adminToken)
//	if err != nil {
//	    // no HTTP response at all
//	}
//	if !resp.IsSuccess() {
//	    // resp.StatusCode, resp.Reason
//	}
package httpclient
