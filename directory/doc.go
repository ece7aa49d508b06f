// Package directory resolves realm role memberships through the identity
// provider's admin REST API.
//
// Lookups go through a cache.Cache first: a warm RolesForUser makes no
// network call, and a cold one makes exactly two admin GETs (user search,
// then role mappings). Usernames the directory does not know are
// remembered in the negative cache. When the caller has no bearer token
// the client obtains one with the service-account grant and caches it for
// the provider-declared lifetime.
package directory
