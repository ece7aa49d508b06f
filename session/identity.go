package session

import "slices"

// Identity is the authenticated principal produced by a login.
type Identity struct {
	// Name is the username, from preferred_username or else the subject.
	Name string `json:"name"`
	// Roles are the realm role names plus the implicit authenticated role.
	Roles []string `json:"roles"`
	// Authenticated is true for identities produced by a successful login.
	Authenticated bool `json:"authenticated"`
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role string) bool {
	return i != nil && slices.Contains(i.Roles, role)
}
