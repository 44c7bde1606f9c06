// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger mounted by the
// router. Emailed links land on /auth/confirm with single-use credentials in
// the query string, and wizard payloads carry clinic contact details, so the
// logger scrubs before it writes:
//   - credential query parameters (token_hash, token, code, access_token,
//     refresh_token, password) are replaced outright
//   - emails, phone numbers, and UUIDs are pattern-redacted from the rest of
//     the query and from header values
//   - Authorization, Cookie, Set-Cookie, and any extra configured headers are
//     fully masked
//
// Bodies are never logged.
//
// Usage:
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{middleware.HeaderIdempotencyKey},
//	}))
package middleware

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/facecloud/internal/observability"
)

// RedactOptions adds to the built-in scrub lists. Names are matched
// case-insensitively.
type RedactOptions struct {
	// MaskHeaders are headers logged as "[REDACTED]".
	MaskHeaders []string
	// MaskParams are query parameters treated like link credentials.
	MaskParams []string
}

var (
	// UUIDs go first so the loose phone pattern never eats their digit groups.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)
	// "+61 2 9300 1234", "0412 345 678", "(02) 9300-1234".
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{3,4}\b`)
)

var (
	defaultMaskHeaders = []string{"authorization", "cookie", "set-cookie"}
	// defaultMaskParams carry link or session secrets.
	defaultMaskParams = []string{"token_hash", "token", "code", "access_token", "refresh_token", "password"}
)

// redactPII replaces ids, emails and phone numbers in s.
func redactPII(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// redactor holds the lowercased mask sets of one RedactingLogger.
type redactor struct {
	headers map[string]bool
	params  map[string]bool
}

func newRedactor(opts RedactOptions) redactor {
	set := func(base, extra []string) map[string]bool {
		m := make(map[string]bool, len(base)+len(extra))
		for _, v := range slices.Concat(base, extra) {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				m[v] = true
			}
		}
		return m
	}
	return redactor{
		headers: set(defaultMaskHeaders, opts.MaskHeaders),
		params:  set(defaultMaskParams, opts.MaskParams),
	}
}

// query masks credential parameters in a raw query string and
// pattern-redacts the rest. Parameter order and encoding are preserved.
func (rd redactor) query(raw string) string {
	if raw == "" {
		return raw
	}
	parts := strings.Split(raw, "&")
	for i, p := range parts {
		k, _, found := strings.Cut(p, "=")
		if !found {
			continue
		}
		name, err := url.QueryUnescape(k)
		if err != nil {
			name = k
		}
		if rd.params[strings.ToLower(name)] {
			parts[i] = k + "=[REDACTED:token]"
		}
	}
	return redactPII(strings.Join(parts, "&"))
}

// headerDict renders h as a log dictionary in key order.
func (rd redactor) headerDict(h map[string][]string) *zerolog.Event {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	d := zerolog.Dict()
	for _, k := range keys {
		v := "[REDACTED]"
		if !rd.headers[strings.ToLower(k)] {
			v = redactPII(strings.Join(h[k], ", "))
		}
		d.Str(k, v)
	}
	return d
}

// RedactingLogger installs the request-scoped logger returned by LoggerFrom
// (also carried on the request context) and, once the handler returns,
// writes one access line: method, route, scrubbed query and headers,
// status, size, latency and the authenticated user. 4xx log at WARN and 5xx
// at ERROR.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	rd := newRedactor(opts)

	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		reqLog := requestLogger(c, route)
		c.Set(loggerKey, &reqLog)
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		level := zerolog.InfoLevel
		switch {
		case status >= 500:
			level = zerolog.ErrorLevel
		case status >= 400:
			level = zerolog.WarnLevel
		}

		ev := reqLog.WithLevel(level)
		if uid := userIDFromCtx(c); uid != "" {
			ev = ev.Str("user_id", uid)
		}
		if _, sid := observability.TraceIDs(c.Request.Context()); sid != "" {
			ev = ev.Str("span_id", sid)
		}
		ev.Str("method", c.Request.Method).
			Str("query", truncate(rd.query(c.Request.URL.RawQuery), maxQueryLogLength)).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Dict("headers", rd.headerDict(c.Request.Header)).
			Msg("http_request")
	}
}
