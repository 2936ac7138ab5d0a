package restapi

import (
	"context"
	"net/http"
	"time"

	"github.com/usaccidents/accidents-api/internal/metrics"
)

const unmatchedRoute = "unmatched"

type routeLabelKey struct{}

// routeLabel is filled in by the router once a route matches, so metrics are
// labelled by pattern rather than by raw path.
type routeLabel struct {
	pattern string
}

func withRouteLabel(ctx context.Context) (context.Context, *routeLabel) {
	label := &routeLabel{pattern: unmatchedRoute}
	return context.WithValue(ctx, routeLabelKey{}, label), label
}

func setRouteLabel(r *http.Request, pattern string) {
	if label, ok := r.Context().Value(routeLabelKey{}).(*routeLabel); ok {
		label.pattern = pattern
	}
}

// NewMetricsMiddleware records request counts, latency and in-flight
// requests.
func NewMetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.RequestStarted()
			defer m.RequestFinished()

			ctx, label := withRouteLabel(r.Context())
			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			m.ObserveRequest(r.Method, label.pattern, wrapped.statusCode, time.Since(start))
		})
	}
}
