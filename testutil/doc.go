// Package testutil provides test fixtures for realmauth packages.
//
// Realm is an in-process identity provider serving discovery, JWKS, the
// token and logout endpoints and the admin user/role API. It counts hits
// per endpoint and can inject failures, so tests can assert exactly which
// provider calls a code path made:
//
//	func TestLogin(t *testing.T) {
//	    realm := testutil.NewRealm("acme")
//	    testutil.T(t).Setup(realm)
//	    realm.AddUser("alice", "pw", "admin")
//	    // point oidc.Config.AuthServerURL at realm.URL()
//	}
package testutil
