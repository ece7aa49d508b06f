package httpclient

import (
	"errors"
	"net/http"

	"github.com/kbukum/realmauth/resilience"
)

var errServerStatus = errors.New("server error status")

// guardedTransport applies the rate limiter and circuit breaker to every
// round trip, including those made by libraries handed Client.Unwrap().
// Transport failures and 5xx answers count against the breaker; 4xx do not.
type guardedTransport struct {
	base http.RoundTripper
	cb   *resilience.CircuitBreaker
	rl   *resilience.RateLimiter
}

func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.rl != nil {
		if err := t.rl.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	if t.cb == nil {
		return t.base.RoundTrip(req)
	}

	var resp *http.Response
	err := t.cb.Execute(func() error {
		var rtErr error
		resp, rtErr = t.base.RoundTrip(req)
		if rtErr != nil {
			return rtErr
		}
		if resp.StatusCode >= 500 {
			return errServerStatus
		}
		return nil
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	return resp, err
}
