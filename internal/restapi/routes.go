package restapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/usaccidents/accidents-api/internal/appconf"
	"github.com/usaccidents/accidents-api/internal/webui"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request)

func validateAPIKey(api *RestAPI, finalHandler handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.invalidAPIKeyResponse(w, r)
			return
		}
		finalHandler(w, r)
	})
}

// route registers a public handler under pattern.
func (api *RestAPI) route(router *httprouter.Router, method, pattern string, handler http.Handler) {
	router.Handler(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setRouteLabel(r, pattern)
		handler.ServeHTTP(w, r)
	}))
}

// protected registers a handler behind the in-flight bound, rate limiting and
// the API key check. Health checks and metrics stay outside the bound so they keep
// answering while the data routes are saturated.
func (api *RestAPI) protected(router *httprouter.Router, method, pattern string, handler handlerFunc) {
	bounded := api.inFlight.Middleware(api.serviceUnavailableResponse)
	api.route(router, method, pattern, bounded(api.rateLimiter.Handler(validateAPIKey(api, handler))))
}

func (api *RestAPI) SetRoutes(router *httprouter.Router) {
	api.protected(router, http.MethodGet, "/accidents/sample", api.accidentsSampleHandler)
	api.protected(router, http.MethodGet, "/accidents/columns", api.accidentsColumnsHandler)
	api.protected(router, http.MethodGet, "/accidents/data/:rows/:page", api.accidentsDataHandler)
	api.protected(router, http.MethodGet, "/accidents/count_by_state", api.countByStateHandler)
	api.protected(router, http.MethodGet, "/accidents/total_records", api.totalRecordsHandler)
	api.protected(router, http.MethodGet, "/accidents/yearly_stats", api.yearlyStatsHandler)

	api.protected(router, http.MethodGet, "/gcs/download/*filename", api.blobDownloadHandler)
	api.protected(router, http.MethodPost, "/gcs/upload", api.blobUploadHandler)

	api.route(router, http.MethodGet, "/healthz", http.HandlerFunc(api.healthzHandler))
	api.route(router, http.MethodGet, "/readyz", http.HandlerFunc(api.readyzHandler))
	if api.Metrics != nil {
		api.route(router, http.MethodGet, "/metrics", api.Metrics.Handler())
	}

	if api.Config.Env != appconf.Production {
		debug := &webui.WebUI{Application: api.Application}
		api.route(router, http.MethodGet, "/debug/", validateAPIKey(api, debug.DebugIndexHandler))
	}
}
