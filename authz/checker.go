package authz

// Checker answers whether subject holds permission.
type Checker interface {
	HasPermission(subject string, permission string) bool
}

// CheckerFunc is an adapter to use ordinary functions as Checker.
type CheckerFunc func(subject string, permission string) bool

// HasPermission implements Checker.
func (f CheckerFunc) HasPermission(subject string, permission string) bool {
	return f(subject, permission)
}

// MapChecker is an in-memory Checker backed by role → permission patterns,
// typically loaded from configuration.
type MapChecker struct {
	permissions map[string][]string
}

// NewMapChecker creates a Checker from a static map of role → permission patterns.
func NewMapChecker(permissions map[string][]string) *MapChecker {
	return &MapChecker{permissions: permissions}
}

// HasPermission implements Checker.
func (c *MapChecker) HasPermission(subject string, required string) bool {
	patterns, ok := c.permissions[subject]
	if !ok {
		return false
	}
	return MatchAny(patterns, required)
}

// Allowed reports whether any of roles grants required.
func Allowed(c Checker, roles []string, required string) bool {
	if c == nil {
		return false
	}
	for _, role := range roles {
		if c.HasPermission(role, required) {
			return true
		}
	}
	return false
}
