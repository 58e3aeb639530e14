package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetUserID(c), "key": GetAPIKeyID(c)})
	})
	return r
}

func do(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdentityMiddleware(t *testing.T) {
	r := newEngine(IdentityMiddleware())

	if w := do(r, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("missing identity: expected 401, got %d", w.Code)
	}
	w := do(r, map[string]string{HeaderUserID: "u1", HeaderAPIKeyID: "k1"})
	if w.Code != http.StatusOK || w.Body.String() != `{"key":"k1","user":"u1"}` {
		t.Errorf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestAdminMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"disabled", "", "anything", http.StatusForbidden},
		{"wrong token", "s3cret", "nope", http.StatusForbidden},
		{"ok", "s3cret", "s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(AdminMiddleware(tt.token))
			if w := do(r, map[string]string{HeaderAdminToken: tt.header}); w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestRateLimitByUser(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	r := newEngine(rl.RateLimitByUser(), Metrics())

	for i := 0; i < 2; i++ {
		if w := do(r, map[string]string{HeaderUserID: "u1"}); w.Code != http.StatusOK {
			t.Fatalf("request %d within burst rejected: %d", i, w.Code)
		}
	}
	if w := do(r, map[string]string{HeaderUserID: "u1"}); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", w.Code)
	}
	if w := do(r, map[string]string{HeaderUserID: "u2"}); w.Code != http.StatusOK {
		t.Errorf("other users must have their own bucket, got %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    string
		method     string
		headers    map[string]string
		wantCode   int
		wantOrigin string
		wantHeader string
	}{
		{"no origin", "https://app.example", http.MethodGet, nil, http.StatusOK, "", ""},
		{"listed origin", "https://app.example, https://ops.example", http.MethodGet,
			map[string]string{"Origin": "https://ops.example"}, http.StatusOK, "https://ops.example", ""},
		{"unlisted origin", "https://app.example", http.MethodGet,
			map[string]string{"Origin": "https://evil.example"}, http.StatusOK, "", ""},
		{"wildcard", "*", http.MethodGet,
			map[string]string{"Origin": "https://any.example"}, http.StatusOK, "*", ""},
		{"preflight", "", http.MethodOptions,
			map[string]string{"Origin": "https://any.example", "Access-Control-Request-Method": "POST"},
			http.StatusNoContent, "*", HeaderUserID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(CORS(tt.allowed))
			req := httptest.NewRequest(tt.method, "/whoami", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", w.Code, tt.wantCode)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("allow-origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
				t.Errorf("credentials must not be allowed, got %q", got)
			}
			if tt.wantHeader != "" && !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), tt.wantHeader) {
				t.Errorf("allow-headers %q missing %s", w.Header().Get("Access-Control-Allow-Headers"), tt.wantHeader)
			}
		})
	}
}
