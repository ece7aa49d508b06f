// Package session holds per-browser-session authentication state.
//
// A Session records whether a login handshake was started, the resolved
// Identity, and the Ledger of the most recent token response. Ledger
// keeps two independent clocks measured from the last refresh: the access
// token lifetime and the refresh token lifetime.
//
// Store is an in-memory session table with lazy idle expiry, and
// Middleware binds a Session to each request through a cookie.
package session
