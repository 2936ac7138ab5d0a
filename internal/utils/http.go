package utils

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
)

// ParamFromRequest retrieves a path parameter from the request context. A
// catch-all parameter loses its leading slash.
func ParamFromRequest(r *http.Request, paramName string) string {
	params := httprouter.ParamsFromContext(r.Context())
	return strings.TrimPrefix(params.ByName(paramName), "/")
}
