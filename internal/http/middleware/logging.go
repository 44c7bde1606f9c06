// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the request plumbing every route shares: correlation IDs,
// the request-scoped logger, and panic recovery. Mount RequestID first,
// then RedactingLogger, then Recovery, so a panic is logged with the
// request's correlation and trace IDs.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/facecloud/internal/observability"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"
	// maxQueryLogLength caps the bytes of a scrubbed query string in logs.
	maxQueryLogLength = 2048
	// maxRequestIDLength bounds client-supplied correlation IDs.
	maxRequestIDLength = 128
)

// RequestID reuses the caller's X-Request-ID, or generates a UUID, and echoes
// it on the response. Oversized client values are replaced.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLength {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// requestLogger derives the per-request logger: request id, route and, when
// the request is traced, the trace id.
func requestLogger(c *gin.Context, route string) zerolog.Logger {
	lc := log.With().
		Str("request_id", c.GetString(requestIDKey)).
		Str("route", route)
	if tid, _ := observability.TraceIDs(c.Request.Context()); tid != "" {
		lc = lc.Str("trace_id", tid)
	}
	return lc.Logger()
}

// Recovery turns a panic into a 500 with the standard error envelope and
// logs the stack. If the handler already wrote a response only the status
// is set.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := c.GetString(requestIDKey)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger attached by RedactingLogger,
// falling back to the global logger with the request id when none is set.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Str("request_id", c.GetString(requestIDKey)).Logger()
	return &l
}

// truncate caps s at max bytes and marks the cut; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
