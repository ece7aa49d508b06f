// Package realm coordinates logins against one identity-provider realm.
//
// A Coordinator turns credentials or an authorization code into a verified
// Identity and the session.Ledger that backs it, resolving roles through
// the directory client. Every successful identity carries the implicit
// "authenticated" role. Login failures of any kind collapse to
// AUTHENTICATION_FAILED with the underlying error as cause, and no partial
// identity is ever returned.
//
// Realm wires the full stack from a Config (HTTP client, provider,
// verifier, cache, directory and coordinator) and exposes it as a
// component.Component:
//
//	r, err := realm.New(cfg, realm.WithLogger(log), realm.WithMetrics(m))
//	if err != nil {
//	    return err
//	}
//	registry.Register(r)
//	id, ledger, err := r.Coordinator().PasswordLogin(ctx, "alice", "secret")
package realm
