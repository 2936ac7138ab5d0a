package restapi

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/usaccidents/accidents-api/internal/app"
)

type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
	inFlight    *InFlightLimiter
}

// NewRestAPI creates a new RestAPI instance with initialized rate and
// in-flight limiters.
func NewRestAPI(app *app.Application) *RestAPI {
	rateLimiter := NewRateLimitMiddleware(app.Config.RateLimit, time.Second, app.APIKeysEnabled())
	return &RestAPI{
		Application: app,
		rateLimiter: rateLimiter.WithTrustedProxies(app.Config.TrustedProxies),
		inFlight:    NewInFlightLimiter(app.Config.MaxInFlight(), DefaultQueueTimeout),
	}
}

// Handler returns the router wrapped in the full middleware chain.
func (api *RestAPI) Handler() http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(api.notFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(api.methodNotAllowedResponse)
	router.HandleOPTIONS = false
	api.SetRoutes(router)

	return api.wrap(router)
}

// wrap applies the shared middleware chain. Request logging sits outermost so
// that every response, including a recovered panic, is logged and traced with
// its request ID. The in-flight bound is applied per route in protected.
func (api *RestAPI) wrap(handler http.Handler) http.Handler {
	handler = CompressionMiddleware(handler)
	handler = api.WithSecurityHeaders(handler)
	handler = api.recoverPanic(handler)
	if api.Metrics != nil {
		handler = NewMetricsMiddleware(api.Metrics)(handler)
	}
	return NewRequestLoggingMiddleware(api.Logger)(handler)
}

// Shutdown stops background work owned by the API.
func (api *RestAPI) Shutdown() {
	api.rateLimiter.Stop()
}
