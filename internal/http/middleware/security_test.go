package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func securityHeaders(t *testing.T, opt SecurityOptions, prep func(*http.Request)) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(opt))
	r.GET("/preferences", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"timeframe": "week"}) })

	req := httptest.NewRequest(http.MethodGet, "/preferences", nil)
	if prep != nil {
		prep(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders(t *testing.T) {
	overTLS := func(r *http.Request) { r.TLS = &tls.ConnectionState{} }
	proxied := func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }

	cases := []struct {
		name    string
		opt     SecurityOptions
		prep    func(*http.Request)
		want    map[string]string
		missing []string
	}{
		{
			name: "baseline",
			want: map[string]string{
				"X-Content-Type-Options": "nosniff",
				"X-Frame-Options":        "DENY",
				"Referrer-Policy":        "no-referrer",
			},
			missing: []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security"},
		},
		{
			name: "policy and no-store",
			opt:  SecurityOptions{EnablePolicy: true, NoStore: true},
			want: map[string]string{
				"Permissions-Policy":                "geolocation=(), microphone=(), camera=(), payment=()",
				"X-Permitted-Cross-Domain-Policies": "none",
				"Cross-Origin-Opener-Policy":        "same-origin",
				"Cross-Origin-Resource-Policy":      "same-site",
				"Cache-Control":                     "no-store",
				"Pragma":                            "no-cache",
				"Expires":                           "0",
			},
		},
		{
			name:    "hsts skipped on plain http",
			opt:     SecurityOptions{EnableHSTS: true},
			missing: []string{"Strict-Transport-Security"},
		},
		{
			name: "hsts over tls with default max age",
			opt:  SecurityOptions{EnableHSTS: true},
			prep: overTLS,
			want: map[string]string{"Strict-Transport-Security": "max-age=15552000; includeSubDomains; preload"},
		},
		{
			name: "hsts behind proxy",
			opt:  SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour},
			prep: proxied,
			want: map[string]string{"Strict-Transport-Security": "max-age=3600; includeSubDomains; preload"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := securityHeaders(t, tc.opt, tc.prep)
			for k, v := range tc.want {
				if got := h.Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
			for _, k := range tc.missing {
				if got := h.Get(k); got != "" {
					t.Errorf("%s unexpectedly set to %q", k, got)
				}
			}
		})
	}
}
