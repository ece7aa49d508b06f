package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/realmauth/auth/authctx"
	"github.com/kbukum/realmauth/auth/oidc"
	"github.com/kbukum/realmauth/authz"
	apperrors "github.com/kbukum/realmauth/errors"
	"github.com/kbukum/realmauth/session"
)

// TokenVerifier verifies a raw access token. *oidc.Verifier implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*oidc.Claims, error)
}

// Bearer verifies the Authorization bearer token and stores the resulting
// *oidc.Claims in the request context via authctx.
func Bearer(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, apperrors.Unauthorized("Authorization header required."))
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			abort(c, apperrors.Unauthorized("Invalid authorization header format."))
			return
		}

		claims, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			abort(c, apperrors.Unauthorized("Invalid token.").WithCause(err))
			return
		}
		c.Request = c.Request.WithContext(authctx.Set(c.Request.Context(), claims))
		c.Next()
	}
}

// RequireIdentity rejects requests whose session carries no authenticated
// identity. It must run after session.Gin.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessionIdentity(c) == nil {
			abort(c, apperrors.Unauthorized(""))
			return
		}
		c.Next()
	}
}

// RequirePermission admits identities with at least one role granting
// permission under checker. Unauthenticated callers get 401, the rest 403.
func RequirePermission(checker authz.Checker, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := sessionIdentity(c)
		if id == nil {
			abort(c, apperrors.Unauthorized(""))
			return
		}
		if !authz.Allowed(checker, id.Roles, permission) {
			abort(c, apperrors.Forbidden(permission))
			return
		}
		c.Next()
	}
}

func sessionIdentity(c *gin.Context) *session.Identity {
	sess, ok := session.FromContext(c.Request.Context())
	if !ok {
		return nil
	}
	id := sess.Identity()
	if id == nil || !id.Authenticated {
		return nil
	}
	return id
}

func abort(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, err.ToResponse())
}
