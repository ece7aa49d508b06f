package authz

import "testing"

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern, required string
		want              bool
	}{
		{"*:*", "cache:configure", true},
		{"*", "anything", true},
		{"cache:*", "cache:configure", true},
		{"cache:*", "cache:read", true},
		{"*:read", "profile:read", true},
		{"*:read", "profile:write", false},
		{"profile:read", "profile:read", true},
		{"profile:read", "cache:read", false},
		{"admin", "admin", true},
		{"admin", "admin:read", false},
	}
	for _, tt := range tests {
		if got := MatchPattern(tt.pattern, tt.required); got != tt.want {
			t.Errorf("MatchPattern(%q, %q): expected %v, got %v", tt.pattern, tt.required, tt.want, got)
		}
	}
}

func TestAllowed_AnyRoleGrants(t *testing.T) {
	checker := NewMapChecker(map[string][]string{
		"admin":         {"*:*"},
		"authenticated": {"profile:read"},
	})

	if !Allowed(checker, []string{"dev", "authenticated"}, "profile:read") {
		t.Error("expected authenticated to grant profile:read")
	}
	if Allowed(checker, []string{"dev", "authenticated"}, "cache:configure") {
		t.Error("expected cache:configure to be denied")
	}
	if !Allowed(checker, []string{"admin"}, "cache:configure") {
		t.Error("expected admin to grant everything")
	}
	if Allowed(nil, []string{"admin"}, "cache:configure") {
		t.Error("expected nil checker to deny")
	}
}

func TestCheckerFunc(t *testing.T) {
	c := CheckerFunc(func(subject, permission string) bool { return subject == "root" })
	if !Allowed(c, []string{"root"}, "x:y") {
		t.Error("expected CheckerFunc to be consulted")
	}
}
