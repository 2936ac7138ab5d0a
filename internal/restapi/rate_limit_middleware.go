package restapi

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/usaccidents/accidents-api/internal/app"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTimeout = 5 * time.Minute
	cleanupInterval    = time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware limits requests per API key, or per client address
// when API keys are disabled.
type RateLimitMiddleware struct {
	limiters  map[string]*clientLimiter
	mu        sync.Mutex
	rateLimit rate.Limit
	burstSize int
	byAPIKey  bool

	// trustedProxies is how many X-Forwarded-For hops, counted from the
	// right, were appended by our own proxies.
	trustedProxies int

	cleanupTick *time.Ticker
	done        chan struct{}
	stopOnce    sync.Once
}

// NewRateLimitMiddleware creates a new rate limiting middleware.
// ratePerSecond requests are allowed per interval, with bursts of the same
// size. Zero blocks every request; a negative rate disables limiting.
func NewRateLimitMiddleware(ratePerSecond int, interval time.Duration, byAPIKey bool) *RateLimitMiddleware {
	var rateLimit rate.Limit
	switch {
	case ratePerSecond < 0:
		rateLimit = rate.Inf
	case ratePerSecond == 0:
		rateLimit = 0
	default:
		rateLimit = rate.Every(interval / time.Duration(ratePerSecond))
	}

	middleware := &RateLimitMiddleware{
		limiters:    make(map[string]*clientLimiter),
		rateLimit:   rateLimit,
		burstSize:   ratePerSecond,
		byAPIKey:    byAPIKey,
		cleanupTick: time.NewTicker(cleanupInterval),
		done:        make(chan struct{}),
	}

	go middleware.cleanup()

	return middleware
}

// WithTrustedProxies makes the limiter key anonymous callers by the
// X-Forwarded-For hop that the outermost of n trusted proxies appended. With
// n of zero the header is ignored, since any client can set it.
func (rl *RateLimitMiddleware) WithTrustedProxies(n int) *RateLimitMiddleware {
	rl.trustedProxies = max(n, 0)
	return rl
}

// clientKey identifies the caller a limiter belongs to.
func (rl *RateLimitMiddleware) clientKey(r *http.Request) string {
	if rl.byAPIKey {
		if key := app.RequestAPIKey(r); key != "" {
			return "key:" + key
		}
		return "key:__no_key__"
	}
	return "ip:" + clientIP(r, rl.trustedProxies)
}

// clientIP returns the caller's address. Behind trustedProxies proxies each
// one appends its peer to X-Forwarded-For, so the client is that many hops
// from the right; entries further left are client supplied.
func clientIP(r *http.Request, trustedProxies int) string {
	if trustedProxies > 0 {
		var hops []string
		for _, header := range r.Header.Values("X-Forwarded-For") {
			for _, hop := range strings.Split(header, ",") {
				if hop = strings.TrimSpace(hop); hop != "" {
					hops = append(hops, hop)
				}
			}
		}
		if len(hops) > 0 {
			return hops[max(len(hops)-trustedProxies, 0)]
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimitMiddleware) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.rateLimit, rl.burstSize)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// Handler is the HTTP middleware function
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.rateLimit == rate.Inf {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.getLimiter(rl.clientKey(r)).Allow() {
			rl.sendRateLimitExceeded(w, r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimitMiddleware) retryAfter() time.Duration {
	if rl.rateLimit == 0 {
		return time.Hour
	}
	seconds := math.Ceil(1 / float64(rl.rateLimit))
	return time.Duration(math.Max(seconds, 1)) * time.Second
}

// sendRateLimitExceeded sends a 429 Too Many Requests response
func (rl *RateLimitMiddleware) sendRateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(rl.retryAfter().Seconds())))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burstSize))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:        http.StatusTooManyRequests,
		CurrentTime: responseCurrentTime(),
		Text:        "Rate limit exceeded. Please try again later.",
		Version:     1,
	})
}

// cleanup periodically drops limiters that have been idle for a while.
func (rl *RateLimitMiddleware) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.evictIdle(time.Now().Add(-limiterIdleTimeout))
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimitMiddleware) evictIdle(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		rl.cleanupTick.Stop()
		close(rl.done)
	})
}
