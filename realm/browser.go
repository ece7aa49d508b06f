package realm

import (
	"context"
	"fmt"

	"github.com/kbukum/realmauth/auth/oidc"
	"github.com/kbukum/realmauth/errors"
	"github.com/kbukum/realmauth/logger"
	"github.com/kbukum/realmauth/session"
)

// CommenceLogin starts a browser login for sess and returns the provider
// URL to redirect to. It marks the session as having requested
// authentication, remembers referer for after the callback, and stores a
// fresh state and PKCE verifier in the session.
func (c *Coordinator) CommenceLogin(sess *session.Session, redirectURI, referer string) (string, error) {
	state, err := oidc.GenerateState()
	if err != nil {
		return "", errors.Internal(err)
	}
	pkce, err := oidc.NewPKCE()
	if err != nil {
		return "", errors.Internal(err)
	}

	sess.SetAuthRequested(true)
	sess.SetValue(session.KeyState, state)
	sess.SetValue(session.KeyVerifier, pkce.CodeVerifier)
	if referer != "" {
		sess.SetValue(session.KeyReferer, referer)
	}
	return c.AuthURL(redirectURI, state, oidc.WithPKCE(pkce)), nil
}

// FinishLogin completes a browser login started by CommenceLogin. The
// callback's state must match the one stored in sess. On success the
// identity and ledger are attached to sess and the remembered referer is
// returned. State and verifier are single use.
func (c *Coordinator) FinishLogin(ctx context.Context, sess *session.Session, code, state, redirectURI string) (*Identity, string, error) {
	expected, _ := sess.TakeValue(session.KeyState)
	verifier, _ := sess.TakeValue(session.KeyVerifier)
	referer, _ := sess.TakeValue(session.KeyReferer)

	if !oidc.StateMatches(expected, state) {
		err := errors.InvalidCredentials(fmt.Errorf("login state mismatch"))
		return nil, "", c.finishLogin(ctx, FlowBrowser, "", nil, err)
	}

	id, ledger, err := c.BrowserCallback(ctx, code, redirectURI, WithCodeVerifier(verifier))
	if err != nil {
		return nil, "", err
	}
	if old := sess.Ledger(); old != nil {
		old.Discard()
	}
	sess.Authenticate(id, ledger)
	return id, referer, nil
}

// EndSession logs sess out locally and at the provider. The session stays
// usable for a new login.
func (c *Coordinator) EndSession(ctx context.Context, sess *session.Session) {
	var name string
	if id := sess.Identity(); id != nil {
		name = id.Name
	}
	c.Logout(ctx, sess.Logout())
	if name != "" {
		c.log.WithContext(ctx).Info("session ended", logger.Fields(logger.FieldUsername, name))
	}
}
