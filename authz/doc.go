// Package authz maps realm roles to permissions.
//
// A Checker answers whether one subject (a role name) holds a permission.
// Permissions use "resource:action" patterns with "*" wildcards, and
// Allowed checks a whole role set as resolved for an identity.
//
//	checker := authz.NewMapChecker(map[string][]string{
//	    "admin":         {"*:*"},
//	    "authenticated": {"profile:read"},
//	})
//	authz.Allowed(checker, identity.Roles, "cache:configure")
package authz
