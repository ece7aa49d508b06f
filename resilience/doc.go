// Package resilience guards calls to the identity provider.
//
//   - CircuitBreaker: fails fast while the provider keeps erroring
//   - RateLimiter: caps the request rate with a token bucket
//
// Neither retries. A failed provider call surfaces to the caller as a
// typed error and the caller decides what happens next.
//
//	cb := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("directory"))
//	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 50, Burst: 10})
//
//	if err := rl.Wait(ctx); err != nil {
//	    return err
//	}
//	err := cb.Execute(func() error {
//	    return call(ctx)
//	})
package resilience
