package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/opsledger/internal/observability/context"
	"github.com/smallbiznis/opsledger/internal/session"
)

const (
	contextUserIDKey    = "user_id"
	contextCompanyIDKey = "company_id"
)

// SessionRequired authenticates the session token and attaches the caller's
// session to the request context. Mutating requests resolve the tenant from
// the database so a stale cached company is never written through.
func (s *Server) SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.cookies.ReadToken(c)
		if !ok {
			AbortWithError(c, session.ErrNoSession)
			return
		}

		ctx := c.Request.Context()
		authSession, err := s.authsvc.Authenticate(ctx, token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		sess, err := s.guard.Resolve(ctx, authSession.ProfileID, isMutating(c.Request.Method))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx = session.WithSession(ctx, sess)
		ctx = obscontext.WithActor(ctx, "user", sess.UserID.String())
		c.Set(contextUserIDKey, sess.UserID.String())
		if sess.HasCompany() {
			ctx = obscontext.WithCompanyID(ctx, sess.CompanyID.String())
			c.Set(contextCompanyIDKey, sess.CompanyID.String())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authzSvc.Authorize(c.Request.Context(), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
