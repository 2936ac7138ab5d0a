package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/usaccidents/accidents-api/internal/accidents"
	"github.com/usaccidents/accidents-api/internal/logging"
)

var errDatasetManagerMissing = fmt.Errorf("%w: no dataset manager configured", accidents.ErrDatasetNotLoaded)

// errorResponse is the body of every error answer except validation errors.
type errorResponse struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Text        string `json:"text"`
	Version     int    `json:"version"`
}

func responseCurrentTime() int64 {
	return time.Now().UnixMilli()
}

func (api *RestAPI) errorResponse(w http.ResponseWriter, r *http.Request, status int, text string) {
	response := errorResponse{
		Code:        status,
		CurrentTime: responseCurrentTime(),
		Text:        text,
		Version:     1,
	}

	setJSONResponseType(w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode error response", err,
			slog.Int("status", status))
	}
}

// invalidAPIKeyResponse sends a 401 Unauthorized response
func (api *RestAPI) invalidAPIKeyResponse(w http.ResponseWriter, r *http.Request) {
	api.errorResponse(w, r, http.StatusUnauthorized, "permission denied")
}

func (api *RestAPI) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(logging.FromContext(r.Context()), "request failed", err,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))
	api.errorResponse(w, r, http.StatusInternalServerError, "internal server error")
}

// datasetErrorResponse answers requests that need the dataset when none is
// loaded.
func (api *RestAPI) datasetErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, accidents.ErrDatasetNotLoaded) {
		logging.LogError(logging.FromContext(r.Context()), "dataset unavailable", err)
		api.errorResponse(w, r, http.StatusInternalServerError, accidents.ErrDatasetNotLoaded.Error())
		return
	}
	api.serverErrorResponse(w, r, err)
}

func (api *RestAPI) badRequestResponse(w http.ResponseWriter, r *http.Request, text string) {
	api.errorResponse(w, r, http.StatusBadRequest, text)
}

func (api *RestAPI) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	api.errorResponse(w, r, http.StatusNotFound, "resource not found")
}

func (api *RestAPI) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	api.errorResponse(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func (api *RestAPI) serviceUnavailableResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	api.errorResponse(w, r, http.StatusServiceUnavailable, "server is busy, try again later")
}

// validationErrorResponse sends a 400 Bad Request response with field-specific validation errors
func (api *RestAPI) validationErrorResponse(w http.ResponseWriter, r *http.Request, fieldErrors map[string][]string) {
	response := struct {
		FieldErrors map[string][]string `json:"fieldErrors"`
	}{
		FieldErrors: fieldErrors,
	}

	setJSONResponseType(w)
	w.WriteHeader(http.StatusBadRequest)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode validation error response", err)
	}
}
