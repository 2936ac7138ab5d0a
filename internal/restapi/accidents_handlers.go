package restapi

import (
	"net/http"

	"github.com/usaccidents/accidents-api/internal/dataset"
	"github.com/usaccidents/accidents-api/internal/utils"
)

// currentDataset fetches the live dataset or answers the request with an
// error. ok is false when a response has already been written.
func (api *RestAPI) currentDataset(w http.ResponseWriter, r *http.Request) (ds *dataset.Dataset, ok bool) {
	if api.Manager == nil {
		api.datasetErrorResponse(w, r, errDatasetManagerMissing)
		return nil, false
	}
	ds, err := api.Manager.Dataset()
	if err != nil {
		api.datasetErrorResponse(w, r, err)
		return nil, false
	}
	return ds, true
}

func (api *RestAPI) accidentsSampleHandler(w http.ResponseWriter, r *http.Request) {
	ds, ok := api.currentDataset(w, r)
	if !ok {
		return
	}
	api.sendJSON(w, r, ds.Sample(dataset.SampleSize))
}

func (api *RestAPI) accidentsColumnsHandler(w http.ResponseWriter, r *http.Request) {
	ds, ok := api.currentDataset(w, r)
	if !ok {
		return
	}
	api.sendJSON(w, r, ds.Columns())
}

func (api *RestAPI) accidentsDataHandler(w http.ResponseWriter, r *http.Request) {
	rows, fieldErrors := utils.ParsePositiveInt(utils.ParamFromRequest(r, "rows"), "rows", nil)
	page, fieldErrors := utils.ParsePositiveInt(utils.ParamFromRequest(r, "page"), "page", fieldErrors)
	if len(fieldErrors) == 0 {
		fieldErrors = utils.ValidatePageSize(rows, api.Config.MaxPageSize, fieldErrors)
	}
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	ds, ok := api.currentDataset(w, r)
	if !ok {
		return
	}

	records, err := ds.Page(rows, page)
	if err != nil {
		api.badRequestResponse(w, r, err.Error())
		return
	}
	api.sendJSON(w, r, records)
}

func (api *RestAPI) countByStateHandler(w http.ResponseWriter, r *http.Request) {
	ds, ok := api.currentDataset(w, r)
	if !ok {
		return
	}
	counts, err := ds.CountByState()
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, counts)
}

func (api *RestAPI) totalRecordsHandler(w http.ResponseWriter, r *http.Request) {
	ds, ok := api.currentDataset(w, r)
	if !ok {
		return
	}
	api.sendJSON(w, r, struct {
		Total int `json:"total"`
	}{Total: ds.Len()})
}

func (api *RestAPI) yearlyStatsHandler(w http.ResponseWriter, r *http.Request) {
	ds, ok := api.currentDataset(w, r)
	if !ok {
		return
	}
	stats, err := ds.YearlyStats()
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, stats)
}
