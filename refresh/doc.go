// Package refresh keeps a logged-in session's tokens fresh on every
// request.
//
// Each inbound request is classified exactly once:
//
//	Skip               validation off, exempt path, or no login handshake
//	Unauthenticated    handshake started but no identity attached
//	ValidPassthrough   tokens fresh enough
//	NeedsRefresh       refresh grant required
//	NeedsForcedLogout  refresh token expired, or the refresh failed
//
// Check runs the decision and any refresh, returning Pass or Logout.
// Middleware and Gin adapt it to net/http and gin, redirecting to the
// host's logout URL on Logout. Refresh failures never reach the handler.
package refresh
