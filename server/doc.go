// Package server provides the HTTP front of a realmauth host: a Gin engine
// mounted on a ServeMux, served over HTTP/1.1 and h2c, with lifecycle
// management through the component registry.
//
// # Middleware
//
// Handler-level middleware (server/middleware) wraps every route:
//
//   - Recovery: panic recovery with structured logging
//   - RequestID: request ID generation, propagated into the log context
//   - BodySizeLimit: request body size limits
//   - RequestLogger: request logging with duration tracking
//
// Gin-level middleware guards individual routes:
//
//   - RateLimit: per-client token buckets, used on credential endpoints
//   - Bearer: access-token verification for API callers
//   - RequireIdentity, RequirePermission: session identity and role checks
//
// # Endpoints
//
// Built-in endpoints (server/endpoint): /health, /alive, /ready and /info.
package server
