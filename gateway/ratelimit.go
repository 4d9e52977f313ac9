package gateway

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorTTL = 10 * time.Minute

// RateLimit bounds request throughput per client.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-client token bucket keyed by the authenticated
// actor, falling back to the remote address for unauthenticated requests.
// Buckets idle past visitorTTL are pruned so the map stays bounded.
type RateLimiter struct {
	logger    *slog.Logger
	limit     RateLimit
	nowFn     func() time.Time
	mu        sync.Mutex
	visitors  map[string]*visitor
	lastPrune time.Time
}

// NewRateLimiter constructs a limiter. A zero RequestsPerMinute disables it.
func NewRateLimiter(limit RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limit:    limit,
		nowFn:    time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Middleware enforces the limit for each request.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limit.RequestsPerMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		id := clientID(r)
		if !rl.obtain(id).Allow() {
			rl.logger.Warn("rate limit exceeded", "client", id, "path", r.URL.Path)
			writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) obtain(id string) *rate.Limiter {
	now := rl.nowFn()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.pruneLocked(now)
	v, ok := rl.visitors[id]
	if !ok {
		burst := rl.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(rl.limit.RequestsPerMinute/60.0), burst)}
		rl.visitors[id] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (rl *RateLimiter) pruneLocked(now time.Time) {
	if now.Sub(rl.lastPrune) < visitorTTL {
		return
	}
	for id, v := range rl.visitors {
		if now.Sub(v.lastSeen) >= visitorTTL {
			delete(rl.visitors, id)
		}
	}
	rl.lastPrune = now
}

func clientID(r *http.Request) string {
	if actor := ActorFromContext(r.Context()); actor != "" {
		return actor
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
