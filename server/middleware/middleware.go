package middleware

import "net/http"

// Middleware is the handler-level wrapper applied around the whole ServeMux,
// so it sees the probe routes as well as everything gin serves.
type Middleware func(http.Handler) http.Handler

// Chain composes middleware with the first argument outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			if middlewares[i] == nil {
				continue
			}
			final = middlewares[i](final)
		}
		return final
	}
}
