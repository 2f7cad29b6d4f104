package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func newLimitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.Handler())
	r.POST("/quotes", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r http.Handler, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/quotes", nil)
	req.RemoteAddr = net.JoinHostPort(ip, "40000")
	r.ServeHTTP(w, req)
	return w
}

func TestKeyByIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	if got := KeyByIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("key = %q", got)
	}
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(2, 0, nil)
	if rl.burst != 1 {
		t.Fatalf("burst coercion failed, got %d", rl.burst)
	}
	if rl.keyFn == nil {
		t.Fatalf("expected default key func")
	}
	if a, b := rl.limiter("k1"), rl.limiter("k1"); a != b {
		t.Fatalf("expected bucket reuse")
	}
}

func TestRateLimiter_BurstThen429WithRetryAfter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 2, KeyByIP())
	rl.now = func() time.Time { return now }
	r := newLimitedRouter(rl)

	for i := 0; i < 2; i++ {
		if w := hit(r, "198.51.100.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, w.Code)
		}
	}

	w := hit(r, "198.51.100.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["code"] != "too_many_requests" {
		t.Fatalf("unexpected body: %v", body)
	}

	// Other clients keep their own bucket.
	if w := hit(r, "198.51.100.2"); w.Code != http.StatusOK {
		t.Fatalf("other ip: status %d", w.Code)
	}

	// A rejected request does not consume a token.
	now = now.Add(time.Second)
	if w := hit(r, "198.51.100.1"); w.Code != http.StatusOK {
		t.Fatalf("after refill: status %d", w.Code)
	}
}

func TestRateLimiter_ZeroRateDisables(t *testing.T) {
	r := newLimitedRouter(NewRateLimiter(0, 1, nil))
	for i := 0; i < 5; i++ {
		if w := hit(r, "192.0.2.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, w.Code)
		}
	}
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 1, nil)
	rl.now = func() time.Time { return now }
	rl.gcEvery = 1

	rl.mu.Lock()
	rl.visitors["old"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: now.Add(-time.Hour)}
	rl.mu.Unlock()

	_ = rl.limiter("new")

	rl.mu.Lock()
	_, hasOld := rl.visitors["old"]
	_, hasNew := rl.visitors["new"]
	rl.mu.Unlock()
	if hasOld || !hasNew {
		t.Fatalf("expected old evicted and new kept: old=%v new=%v", hasOld, hasNew)
	}
	if rl.Len() != 1 {
		t.Fatalf("Len = %d", rl.Len())
	}
}
