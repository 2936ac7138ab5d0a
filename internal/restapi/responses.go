package restapi

import (
	"encoding/json"
	"net/http"

	"github.com/usaccidents/accidents-api/internal/logging"
)

func (api *RestAPI) sendJSON(w http.ResponseWriter, r *http.Request, v any) {
	api.sendStatusJSON(w, r, http.StatusOK, v)
}

// sendStatusJSON writes v as JSON. The body is encoded before any header is
// written so an encoding failure can still become a 500.
func (api *RestAPI) sendStatusJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	setJSONResponseType(w)
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to write response", err)
	}
}

func setJSONResponseType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}
