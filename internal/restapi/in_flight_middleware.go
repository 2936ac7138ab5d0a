package restapi

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultQueueTimeout is how long a request waits for a free slot before it
// is turned away.
const DefaultQueueTimeout = 30 * time.Second

// InFlightLimiter bounds the number of requests served at once.
type InFlightLimiter struct {
	sem          *semaphore.Weighted
	limit        int64
	queueTimeout time.Duration
}

// NewInFlightLimiter allows limit concurrent requests. A limit below one
// disables the bound.
func NewInFlightLimiter(limit int, queueTimeout time.Duration) *InFlightLimiter {
	if limit < 1 {
		return &InFlightLimiter{}
	}
	return &InFlightLimiter{
		sem:          semaphore.NewWeighted(int64(limit)),
		limit:        int64(limit),
		queueTimeout: queueTimeout,
	}
}

func (l *InFlightLimiter) Limit() int {
	return int(l.limit)
}

// Middleware makes excess requests wait for a slot. Requests still waiting
// after the queue timeout, or whose client went away, get rejected.
func (l *InFlightLimiter) Middleware(rejected http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l.sem == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), l.queueTimeout)
			err := l.sem.Acquire(ctx, 1)
			cancel()
			if err != nil {
				rejected(w, r)
				return
			}
			defer l.sem.Release(1)

			next.ServeHTTP(w, r)
		})
	}
}
