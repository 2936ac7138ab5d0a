package webui

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/usaccidents/accidents-api/internal/app"
	"github.com/usaccidents/accidents-api/internal/dataset"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

// WebUI serves human-readable dumps of the loaded dataset.
type WebUI struct {
	*app.Application
}

type debugData struct {
	Title string
	Pre   string
}

type summary struct {
	Source      string
	Rows        int
	Columns     int
	LastUpdated time.Time
}

func writeDebugData(w http.ResponseWriter, title string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err := debugTemplate.Execute(w, debugData{
		Title: title,
		Pre:   spew.Sdump(data),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (webUI *WebUI) DebugIndexHandler(w http.ResponseWriter, r *http.Request) {
	dataType := r.URL.Query().Get("dataType")

	var ds *dataset.Dataset
	var err error
	if webUI.Manager != nil {
		ds, err = webUI.Manager.Dataset()
	}
	if ds == nil && dataType != "" {
		writeDebugData(w, "Dataset unavailable", map[string]string{"error": errorText(err)})
		return
	}

	var data interface{}
	var title string

	switch dataType {
	case "columns":
		data = ds.Columns()
		title = "Dataset - Columns"
	case "kinds":
		kinds := make(map[string]string, len(ds.Columns()))
		for i, column := range ds.Columns() {
			kinds[column] = ds.Kinds()[i].String()
		}
		data = kinds
		title = "Dataset - Column Kinds"
	case "sample":
		sample := make([]map[string]any, 0, dataset.SampleSize)
		for _, record := range ds.Sample(dataset.SampleSize) {
			sample = append(sample, record.Map())
		}
		data = sample
		title = "Dataset - Sample"
	case "summary":
		data = summary{
			Source:      webUI.Manager.Source(),
			Rows:        ds.Len(),
			Columns:     len(ds.Columns()),
			LastUpdated: webUI.Manager.LastUpdated(),
		}
		title = "Dataset - Summary"
	case "state_counts":
		data, err = ds.CountByState()
		if err != nil {
			data = map[string]string{"error": err.Error()}
		}
		title = "Dataset - Accidents by State"
	case "yearly_stats":
		data, err = ds.YearlyStats()
		if err != nil {
			data = map[string]string{"error": err.Error()}
		}
		title = "Dataset - Accidents by Year"
	case "store":
		store := webUI.Manager.Store()
		if store == nil {
			data = map[string]string{"error": "no SQL store configured"}
		} else if counts, err := store.TableCounts(r.Context()); err != nil {
			data = map[string]string{"error": err.Error()}
		} else {
			data = counts
		}
		title = "SQL Store - Table Counts"
	default:
		data = map[string]string{
			"error": "Please use one of the following: columns, kinds, sample, summary, state_counts, yearly_stats, store.",
		}
		title = "Choose a data type"
	}

	writeDebugData(w, title, data)
}

func errorText(err error) string {
	if err == nil {
		return "dataset not loaded"
	}
	return err.Error()
}
