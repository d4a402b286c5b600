// Package middleware provides HTTP middleware for the doctrail API.
package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxClients bounds the limiter table to prevent memory exhaustion.
const maxClients = 100_000

// Limit is a sustained request rate with a burst allowance.
type Limit struct {
	RPS   float64
	Burst int
}

// RateLimitConfig sets the allowance of callers that name an actor and of
// anonymous callers, which are keyed by remote IP.
type RateLimitConfig struct {
	Actor     Limit
	Anonymous Limit
}

// DefaultRateLimitConfig applies when a RateLimitConfig field is zero.
var DefaultRateLimitConfig = RateLimitConfig{
	Actor:     Limit{RPS: 100, Burst: 200},
	Anonymous: Limit{RPS: 20, Burst: 40},
}

func (l Limit) orDefault(def Limit) Limit {
	if l.RPS <= 0 || l.Burst < 1 {
		return def
	}

	return l
}

// RateLimiter throttles requests per client. Actors get their own allowance
// wherever they connect from; anonymous callers share one per IP.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	cfg     RateLimitConfig
	now     func() time.Time
}

type client struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewRateLimiter creates a RateLimiter. A background goroutine evicts idle
// clients until ctx is cancelled.
func NewRateLimiter(ctx context.Context, cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*client),
		cfg: RateLimitConfig{
			Actor:     cfg.Actor.orDefault(DefaultRateLimitConfig.Actor),
			Anonymous: cfg.Anonymous.orDefault(DefaultRateLimitConfig.Anonymous),
		},
		now: time.Now,
	}
	go rl.startCleanup(ctx)

	return rl
}

func (rl *RateLimiter) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	const maxIdle = 10 * time.Minute

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, cl := range rl.clients {
				if now.Sub(cl.seen) > maxIdle {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// clientKey identifies the requester and reports whether it is anonymous.
// Must run after Tracking.
func clientKey(c *gin.Context) (string, bool) {
	if actor := c.GetString(ActorKey); actor != "" {
		return "actor:" + actor, false
	}

	// c.ClientIP() is safe from X-Forwarded-For spoofing because
	// SetTrustedProxies(nil) disables proxy header trust.
	return "ip:" + c.ClientIP(), true
}

// reserve takes one token for key at now. It returns nil when the client
// table is full.
func (rl *RateLimiter) reserve(key string, anonymous bool, now time.Time) *rate.Reservation {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[key]
	if !ok {
		if len(rl.clients) >= maxClients {
			return nil
		}

		l := rl.cfg.Actor
		if anonymous {
			l = rl.cfg.Anonymous
		}

		cl = &client{limiter: rate.NewLimiter(rate.Limit(l.RPS), l.Burst)}
		rl.clients[key] = cl
	}

	cl.seen = now

	return cl.limiter.ReserveN(now, 1)
}

// Handler returns Gin middleware that applies rate limiting per client.
// Rejected requests carry a Retry-After header.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, anonymous := clientKey(c)
		now := rl.now()

		res := rl.reserve(key, anonymous, now)
		if res == nil {
			respondError(c, http.StatusTooManyRequests, errCodeRateLimited, "too many clients")

			return
		}

		if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
			res.CancelAt(now)

			if res.OK() {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			}

			respondError(c, http.StatusTooManyRequests, errCodeRateLimited, "rate limit exceeded")

			return
		}

		c.Next()
	}
}
