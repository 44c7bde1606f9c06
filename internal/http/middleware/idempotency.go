// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file handles the Idempotency-Key header on wizard submissions. A key
// applies to one user and one scope (method plus path, so "POST /clinics"
// and "POST /clinics/<id>/staff" never collide). When the user already
// completed a submission under the key, the stored outcome is attached to
// the request, the handler answers from it, and the rate limiter lets the
// retry through for free.
//
// Idempotency must run after RequireAuth.
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

// maxIdempotencyKeyLen caps accepted keys.
const maxIdempotencyKeyLen = 200

const (
	ctxKeyIdem       = "idem"
	ctxKeyRateBypass = "rate.bypass" // bool: skip rate limiting
)

// Replay is the stored outcome of an earlier submission.
type Replay struct {
	ResourceID string
	Status     int
}

// ReplayLookup returns the live outcome stored for (userID, scope, key).
// Lookup failures report ok=false so the request proceeds normally.
type ReplayLookup func(ctx context.Context, userID, scope, key string) (r Replay, ok bool)

type idemState struct {
	key, scope string
	replay     *Replay
}

// Idempotency validates the Idempotency-Key header when present and records
// key, scope and any stored outcome on the context. Keys longer than 200
// bytes or outside [A-Za-z0-9._~:-] are answered with 400.
func Idempotency(lookup ReplayLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if !validIdempotencyKey(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		st := &idemState{key: key, scope: c.Request.Method + " " + c.Request.URL.Path}
		if uid := userIDFromCtx(c); uid != "" && lookup != nil {
			if r, ok := lookup(c.Request.Context(), uid, st.scope, key); ok {
				st.replay = &r
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Set(ctxKeyIdem, st)
		c.Next()
	}
}

func validIdempotencyKey(k string) bool {
	if len(k) > maxIdempotencyKeyLen {
		return false
	}
	for i := 0; i < len(k); i++ {
		switch b := k[i]; {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		case b == '.', b == '_', b == '~', b == ':', b == '-':
		default:
			return false
		}
	}
	return true
}

func idemFrom(c *gin.Context) *idemState {
	v, _ := c.Get(ctxKeyIdem)
	st, _ := v.(*idemState)
	return st
}

// IdempotencyKey returns the validated key and its scope.
func IdempotencyKey(c *gin.Context) (key, scope string, ok bool) {
	if st := idemFrom(c); st != nil {
		return st.key, st.scope, true
	}
	return "", "", false
}

// ReplayOf returns the stored outcome when the request repeats a completed
// submission.
func ReplayOf(c *gin.Context) (Replay, bool) {
	if st := idemFrom(c); st != nil && st.replay != nil {
		return *st.replay, true
	}
	return Replay{}, false
}

// userIDFromCtx returns the user set by RequireAuth, or "".
func userIDFromCtx(c *gin.Context) string {
	s, _ := c.Value(CtxUserID).(string)
	return s
}
