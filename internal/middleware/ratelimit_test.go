package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/doctrail/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// limits applies the same allowance to actors and anonymous callers.
func limits(rps float64, burst int) middleware.RateLimitConfig {
	l := middleware.Limit{RPS: rps, Burst: burst}

	return middleware.RateLimitConfig{Actor: l, Anonymous: l}
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := middleware.NewRateLimiter(ctx, limits(10, 5))

	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.RemoteAddr = "1.2.3.4:1234"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRateLimiter_BlocksExceedingLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := middleware.NewRateLimiter(ctx, limits(1, 2))

	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := range 3 {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req.RemoteAddr = "1.2.3.4:1234"
		r.ServeHTTP(w, req)

		if i < 2 && w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
		if i == 2 && w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: expected 429, got %d", i, w.Code)
		}
		if i == 2 && w.Header().Get("Retry-After") != "1" {
			t.Errorf("Retry-After = %q, want 1", w.Header().Get("Retry-After"))
		}
	}
}

func TestRateLimiter_IndependentBuckets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := middleware.NewRateLimiter(ctx, limits(1, 1))

	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Use IP A's token
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.RemoteAddr = "1.1.1.1:1000"
	r.ServeHTTP(w, req)

	// IP B should still work
	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req2.RemoteAddr = "2.2.2.2:1000"
	r.ServeHTTP(w2, req2)

	if w2.Code != http.StatusOK {
		t.Fatalf("different IP should not be rate limited, got %d", w2.Code)
	}
}

func TestRateLimiter_TokensRefillOverTime(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// High rate so even tiny elapsed time refills tokens
	rl := middleware.NewRateLimiter(ctx, limits(1000000, 2))

	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Exhaust burst
	for range 2 {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req.RemoteAddr = "5.5.5.5:1000"
		r.ServeHTTP(w, req)
	}

	// With 1M/sec rate, next request should refill immediately
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.RemoteAddr = "5.5.5.5:1000"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected tokens to refill, got %d", w.Code)
	}
}

func TestRateLimiter_KeysByActor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := middleware.NewRateLimiter(ctx, limits(1, 1))

	r := gin.New()
	r.Use(middleware.Tracking(), rl.Handler())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(actor string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req.RemoteAddr = "9.9.9.9:1000"
		req.Header.Set(middleware.ActorHeader, actor)
		r.ServeHTTP(w, req)

		return w.Code
	}

	if code := send("alice"); code != http.StatusOK {
		t.Fatalf("alice first request: got %d", code)
	}

	// Same IP, different actor: separate bucket.
	if code := send("bob"); code != http.StatusOK {
		t.Fatalf("bob should not share alice's bucket, got %d", code)
	}

	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("alice second request: expected 429, got %d", code)
	}
}

func TestRateLimiter_AnonymousAllowanceIsSeparate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := middleware.NewRateLimiter(ctx, middleware.RateLimitConfig{
		Actor:     middleware.Limit{RPS: 1, Burst: 3},
		Anonymous: middleware.Limit{RPS: 1, Burst: 1},
	})

	r := gin.New()
	r.Use(middleware.Tracking(), rl.Handler())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(actor string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req.RemoteAddr = "7.7.7.7:1000"
		if actor != "" {
			req.Header.Set(middleware.ActorHeader, actor)
		}
		r.ServeHTTP(w, req)

		return w.Code
	}

	if code := send(""); code != http.StatusOK {
		t.Fatalf("anonymous first request: got %d", code)
	}

	if code := send(""); code != http.StatusTooManyRequests {
		t.Fatalf("anonymous second request: expected 429, got %d", code)
	}

	for i := range 3 {
		if code := send("alice"); code != http.StatusOK {
			t.Fatalf("alice request %d: got %d", i, code)
		}
	}

	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("alice over burst: expected 429, got %d", code)
	}
}

func TestRateLimiter_ZeroConfigUsesDefaults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := middleware.NewRateLimiter(ctx, middleware.RateLimitConfig{})

	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := range middleware.DefaultRateLimitConfig.Anonymous.Burst {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req.RemoteAddr = "8.8.8.8:1000"
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("request %d within default burst: got %d", i, w.Code)
		}
	}
}
