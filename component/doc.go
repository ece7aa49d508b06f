// Package component defines the lifecycle contract shared by the long-lived
// parts of a realmauth host: the realm connection, the HTTP server and the
// telemetry providers.
//
// A Registry starts components in registration order, stops them in
// reverse, and aggregates their health for the status endpoint.
package component
