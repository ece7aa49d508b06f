package authz

import "strings"

// MatchPattern reports whether pattern grants required. Both use
// "resource:action"; "*" matches any single part and "*" or "*:*" alone
// match everything. Values without ":" compare as plain strings.
func MatchPattern(pattern, required string) bool {
	if pattern == required || pattern == "*" || pattern == "*:*" {
		return true
	}

	patRes, patAct, patSplit := strings.Cut(pattern, ":")
	reqRes, reqAct, reqSplit := strings.Cut(required, ":")
	if !patSplit || !reqSplit {
		return false
	}
	return wildcard(patRes, reqRes) && wildcard(patAct, reqAct)
}

// MatchAny returns true if any of the patterns match the required permission.
func MatchAny(patterns []string, required string) bool {
	for _, p := range patterns {
		if MatchPattern(p, required) {
			return true
		}
	}
	return false
}

func wildcard(pattern, value string) bool {
	return pattern == "*" || pattern == value
}
