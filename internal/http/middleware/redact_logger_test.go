package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

// accessLine runs one request through RequestID and RedactingLogger and
// returns the decoded access log line.
func accessLine(t *testing.T, opts RedactOptions, status int, prep func(*http.Request), target string) map[string]any {
	t.Helper()
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-Test-User") != "" {
			c.Set(CtxUserID, c.GetHeader("X-Test-User"))
		}
		c.Next()
	})
	r.Use(RequestID(), RedactingLogger(opts))
	r.GET("/clinics/:id", func(c *gin.Context) { c.Status(status) })
	r.GET("/auth/confirm", func(c *gin.Context) { c.Status(status) })

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set(requestIDHeader, "rid-log")
	if prep != nil {
		prep(req)
	}
	r.ServeHTTP(httptest.NewRecorder(), req)

	for _, l := range logLines(t, buf) {
		if l["message"] == "http_request" {
			return l
		}
	}
	t.Fatalf("no access line: %s", buf.String())
	return nil
}

func TestRedactingLogger_AccessLine(t *testing.T) {
	l := accessLine(t, RedactOptions{MaskHeaders: []string{"X-Api-Key"}}, http.StatusOK, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer secret")
		r.Header.Set("Cookie", "fc_session=topsecret")
		r.Header.Set("X-Api-Key", "shhh")
		r.Header.Set("X-Contact", "email a@b.com id=123e4567-e89b-12d3-a456-426614174000 phone 0412 345 678")
		r.Header.Set("X-Test-User", "owner-1")
	}, "/clinics/c1?email=owner@bondiclinic.com.au&page=2")

	want := map[string]any{
		"level":      "info",
		"request_id": "rid-log",
		"route":      "/clinics/:id",
		"method":     "GET",
		"status":     float64(200),
		"user_id":    "owner-1",
		"query":      "email=[REDACTED:email]&page=2",
	}
	for k, v := range want {
		if l[k] != v {
			t.Errorf("%s = %v, want %v", k, l[k], v)
		}
	}

	h, _ := l["headers"].(map[string]any)
	for _, k := range []string{"Authorization", "Cookie", "X-Api-Key"} {
		if h[k] != "[REDACTED]" {
			t.Errorf("header %s = %v", k, h[k])
		}
	}
	if got := h["X-Contact"]; got != "email [REDACTED:email] id=[REDACTED:id] phone [REDACTED:phone]" {
		t.Errorf("X-Contact = %v", got)
	}
	if _, ok := l["span_id"]; ok {
		t.Error("span_id on untraced request")
	}
}

func TestRedactingLogger_Levels(t *testing.T) {
	for status, level := range map[int]string{
		http.StatusNoContent:           "info",
		http.StatusNotFound:            "warn",
		http.StatusUnprocessableEntity: "warn",
		http.StatusBadGateway:          "error",
	} {
		if l := accessLine(t, RedactOptions{}, status, nil, "/clinics/c1"); l["level"] != level {
			t.Errorf("status %d logged at %v, want %s", status, l["level"], level)
		}
	}
}

func TestRedactingLogger_LinkCredentials(t *testing.T) {
	l := accessLine(t, RedactOptions{MaskParams: []string{"Invite"}}, http.StatusSeeOther, nil,
		"/auth/confirm?token_hash=abc123secret&type=magiclink&redirect_to=%2Fclinics&code=zzz&invite=qqq")

	q, _ := l["query"].(string)
	for _, secret := range []string{"abc123secret", "zzz", "qqq"} {
		if strings.Contains(q, secret) {
			t.Fatalf("credential %q leaked: %s", secret, q)
		}
	}
	want := "token_hash=[REDACTED:token]&type=magiclink&redirect_to=%2Fclinics&code=[REDACTED:token]&invite=[REDACTED:token]"
	if q != want {
		t.Fatalf("query = %q\nwant    %q", q, want)
	}
}

func TestRedactor_Query(t *testing.T) {
	rd := newRedactor(RedactOptions{})
	cases := map[string]string{
		"":                       "",
		"page=2":                 "page=2",
		"Token=abc":              "Token=[REDACTED:token]",
		"flag&code=1":            "flag&code=[REDACTED:token]",
		"access%5Ftoken=x":       "access%5Ftoken=[REDACTED:token]",
		"email=owner@clinic.com": "email=[REDACTED:email]",
	}
	for in, want := range cases {
		if got := rd.query(in); got != want {
			t.Errorf("query(%q) = %q, want %q", in, got, want)
		}
	}
}
