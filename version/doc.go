// Package version reports build information for realmauth hosts.
//
// Version, commit and build time are set at compile time via -ldflags and
// fall back to the VCS stamps Go embeds in the binary:
//
//	go build -ldflags "-X github.com/kbukum/realmauth/version.Version=1.2.0"
package version
