package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/identity"
)

type fakeAuthn map[string]*identity.Session

func (f fakeAuthn) Authenticate(_ context.Context, tok string) (*identity.Session, error) {
	if tok == "broken" {
		return nil, errors.New("db down")
	}
	if s, ok := f[tok]; ok {
		return s, nil
	}
	return nil, identity.ErrUnauthenticated
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authn := fakeAuthn{"good": {ID: "sess-1", User: domain.User{ID: "user-1"}}}
	r.GET("/me", RequireAuth(authn), func(c *gin.Context) {
		sess, ok := SessionFrom(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user":    c.GetString(CtxUserID),
			"session": c.GetString(CtxSessionID),
			"token":   c.GetString(CtxAccessToken),
			"same":    sess.ID == c.GetString(CtxSessionID),
		})
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	r := newAuthRouter()

	cases := []struct {
		name   string
		header string
		cookie string
		status int
	}{
		{"bearer", "Bearer good", "", http.StatusOK},
		{"bearer case-insensitive", "bearer good", "", http.StatusOK},
		{"cookie", "", "good", http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", "", http.StatusUnauthorized},
		{"header wins over cookie", "Bearer nope", "good", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", "", http.StatusUnauthorized},
		{"lookup failure", "Bearer broken", "", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tc.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			if tc.status == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("401 must carry WWW-Authenticate")
			}
			if tc.status != http.StatusOK {
				return
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("json: %v", err)
			}
			if body["user"] != "user-1" || body["session"] != "sess-1" || body["token"] != "good" || body["same"] != true {
				t.Fatalf("unexpected context: %v", body)
			}
		})
	}
}
