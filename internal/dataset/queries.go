package dataset

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// SampleSize is the number of rows returned by the sample endpoint.
const SampleSize = 10

// StateCount is the number of accidents recorded in one state.
type StateCount struct {
	State         string `json:"State"`
	AccidentCount int    `json:"AccidentCount"`
}

// YearCount is the number of accidents that started in one calendar year.
type YearCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// Sample returns the first n rows.
func (d *Dataset) Sample(n int) []Record {
	return d.Records(0, n)
}

// Page returns page number page (1-based) of rowsPerPage rows. A page past
// the end of the table is empty.
func (d *Dataset) Page(rowsPerPage, page int) ([]Record, error) {
	if rowsPerPage <= 0 || page <= 0 {
		return nil, ErrInvalidPage
	}
	start := (page - 1) * rowsPerPage
	if start/rowsPerPage != page-1 || start >= len(d.rows) {
		return []Record{}, nil
	}
	return d.Records(start, start+rowsPerPage), nil
}

// CountByState counts rows per State value, largest first. Ties are ordered
// by state name. Rows without a state are not counted.
func (d *Dataset) CountByState() ([]StateCount, error) {
	col, err := d.column(StateColumn)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, row := range d.rows {
		if state := row[col]; state != "" {
			counts[state]++
		}
	}

	out := make([]StateCount, 0, len(counts))
	for state, n := range counts {
		out = append(out, StateCount{State: state, AccidentCount: n})
	}
	slices.SortFunc(out, func(a, b StateCount) int {
		if c := cmp.Compare(b.AccidentCount, a.AccidentCount); c != 0 {
			return c
		}
		return strings.Compare(a.State, b.State)
	})
	return out, nil
}

// YearlyStats counts rows per Start_Time year in ascending year order.
// Start times that cannot be parsed are skipped.
func (d *Dataset) YearlyStats() ([]YearCount, error) {
	col, err := d.column(StartTimeColumn)
	if err != nil {
		return nil, err
	}

	counts := make(map[int]int)
	for _, row := range d.rows {
		if year, ok := ParseYear(row[col]); ok {
			counts[year]++
		}
	}

	out := make([]YearCount, 0, len(counts))
	for year, n := range counts {
		out = append(out, YearCount{Year: year, Count: n})
	}
	slices.SortFunc(out, func(a, b YearCount) int {
		return cmp.Compare(a.Year, b.Year)
	})
	return out, nil
}

// timeLayouts are tried in order. Fractional seconds after the seconds
// field are accepted by time.Parse without being named in the layout.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseYear extracts the calendar year from a timestamp cell.
func ParseYear(cell string) (int, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.Year(), true
		}
	}
	return 0, false
}
