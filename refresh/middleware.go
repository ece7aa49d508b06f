package refresh

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/realmauth/session"
)

// Middleware runs Check before next. Sessions come from
// session.Middleware, which must wrap this handler.
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := session.FromContext(r.Context())
		if i.Check(r.Context(), Request{Path: r.URL.Path, Session: sess}) == Logout {
			i.redirect(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Gin is the gin form of Middleware. Install it after session.Gin.
func (i *Interceptor) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := session.FromContext(c.Request.Context())
		if i.Check(c.Request.Context(), Request{Path: c.Request.URL.Path, Session: sess}) == Logout {
			i.redirect(c.Writer, c.Request)
			c.Abort()
			return
		}
		c.Next()
	}
}

// redirect drops any headers staged by earlier handlers, except cookies,
// and sends the client to the logout URL.
func (i *Interceptor) redirect(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	for k := range h {
		if k != "Set-Cookie" {
			h.Del(k)
		}
	}
	http.Redirect(w, r, i.Policy().LogoutURL, http.StatusFound)
}
