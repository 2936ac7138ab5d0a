package restapi

import (
	"net/http"
	"time"
)

type readiness struct {
	Status      string    `json:"status"`
	Rows        int       `json:"rows,omitempty"`
	Source      string    `json:"source,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitzero"`
	Error       string    `json:"error,omitempty"`
}

// healthzHandler reports liveness. It never touches the dataset.
func (api *RestAPI) healthzHandler(w http.ResponseWriter, r *http.Request) {
	api.sendJSON(w, r, map[string]string{"status": "ok"})
}

// readyzHandler reports whether the dataset is loaded.
func (api *RestAPI) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if api.Manager == nil {
		api.sendStatusJSON(w, r, http.StatusServiceUnavailable, readiness{Status: "unavailable", Error: errDatasetManagerMissing.Error()})
		return
	}

	ds, err := api.Manager.Dataset()
	if err != nil {
		api.sendStatusJSON(w, r, http.StatusServiceUnavailable, readiness{Status: "unavailable", Error: err.Error()})
		return
	}

	api.sendJSON(w, r, readiness{
		Status:      "ready",
		Rows:        ds.Len(),
		Source:      api.Manager.Source(),
		LastUpdated: api.Manager.LastUpdated(),
	})
}
