// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file authenticates API requests. The access token is read from an
// "Authorization: Bearer" header or, for browsers that completed the
// /auth/confirm redirect, from the session cookie. The resolved user and
// session ids are stored in the Gin context for handlers, the rate limiter,
// the idempotency validator, and the request logger.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/facecloud/internal/identity"
)

// SessionCookie is the cookie holding the access token.
const SessionCookie = "fc_session"

// Gin context keys written by RequireAuth.
const (
	CtxUserID      = "userID"
	CtxSessionID   = "sessionID"
	CtxSession     = "session"
	CtxAccessToken = "accessToken"
)

// Authenticator resolves an access token to its live session.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*identity.Session, error)
}

// AccessToken extracts the bearer token or session cookie value.
func AccessToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, tok, found := strings.Cut(h, " ")
		if found && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	if ck, err := c.Cookie(SessionCookie); err == nil {
		return ck
	}
	return ""
}

// RequireAuth rejects requests without a live session with 401. Lookup
// failures other than an invalid token are answered with 500.
func RequireAuth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := AccessToken(c)
		if tok == "" {
			abortUnauthorized(c, "authentication required")
			return
		}
		sess, err := authn.Authenticate(c.Request.Context(), tok)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthenticated) {
				abortUnauthorized(c, "session is invalid or has expired")
				return
			}
			LoggerFrom(c).Error().Err(err).Msg("authenticate")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "internal_error",
				"message":    "internal server error",
			})
			return
		}
		c.Set(CtxUserID, sess.User.ID)
		c.Set(CtxSessionID, sess.ID)
		c.Set(CtxSession, sess)
		c.Set(CtxAccessToken, tok)
		c.Next()
	}
}

// SessionFrom returns the session stored by RequireAuth.
func SessionFrom(c *gin.Context) (*identity.Session, bool) {
	v, ok := c.Get(CtxSession)
	if !ok {
		return nil, false
	}
	s, ok := v.(*identity.Session)
	return s, ok && s != nil
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="facecloud"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
