package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pricescout/config"
)

func testRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func get(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthAcceptsConfiguredKey(t *testing.T) {
	r := testRouter(Auth([]string{"alpha", "beta"}))

	for _, h := range []map[string]string{
		{"X-API-Key": "beta"},
		{"Authorization": "Bearer alpha"},
	} {
		if w := get(r, h); w.Code != http.StatusOK {
			t.Errorf("headers %v: status = %d, want 200", h, w.Code)
		}
	}
}

func TestAuthRejectsMissingAndWrongKeys(t *testing.T) {
	r := testRouter(Auth([]string{"alpha"}))

	if w := get(r, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", w.Code)
	}
	if w := get(r, map[string]string{"X-API-Key": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", w.Code)
	}
	// A prefix of a real key must not pass.
	if w := get(r, map[string]string{"X-API-Key": "alph"}); w.Code != http.StatusUnauthorized {
		t.Errorf("prefix of key: status = %d, want 401", w.Code)
	}
}

func TestAuthOpenWhenNoKeysConfigured(t *testing.T) {
	r := testRouter(Auth(nil))
	if w := get(r, nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with no keys configured", w.Code)
	}
}

func TestAuthIdentityIsNotTheRawKey(t *testing.T) {
	var recorded string
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Auth([]string{"alpha"}))
	r.GET("/ping", func(c *gin.Context) {
		recorded = c.GetString(identityKey)
		c.Status(http.StatusOK)
	})

	get(r, map[string]string{"X-API-Key": "alpha"})
	if recorded == "" || recorded == "alpha" {
		t.Errorf("identity = %q, want a fingerprint distinct from the key", recorded)
	}
}

func TestRateLimitClientBucketExhaustion(t *testing.T) {
	cfg := config.RateLimitConfig{
		SharedPerMinute: 600, SharedBurst: 100,
		ClientPerMinute: 1, ClientBurst: 2,
	}
	r := testRouter(RateLimit(cfg))

	for i := 0; i < 2; i++ {
		if w := get(r, nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200 within burst", i, w.Code)
		}
	}
	w := get(r, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 past the client burst", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response is missing a Retry-After hint")
	}
}

func TestRateLimitSharedBucketExhaustion(t *testing.T) {
	cfg := config.RateLimitConfig{
		SharedPerMinute: 1, SharedBurst: 1,
		ClientPerMinute: 600, ClientBurst: 100,
	}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// Distinct identities so only the shared bucket can reject.
	ids := []string{"key:aaa", "key:bbb"}
	i := 0
	r.Use(func(c *gin.Context) { c.Set(identityKey, ids[i%2]); i++ })
	r.Use(RateLimit(cfg))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := get(r, nil); w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", w.Code)
	}
	if w := get(r, nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429 once the shared bucket drains", w.Code)
	}
}
