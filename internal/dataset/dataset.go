// Package dataset holds the accidents table in memory and answers the
// queries the API exposes over it.
//
// A Dataset is immutable once built. Cells are kept as normalised strings
// with one inferred Kind per column; typed values are produced when records
// are encoded. Missing values (empty cells and the usual NA spellings) are
// stored as the empty string and encode as JSON null.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// StateColumn is grouped by CountByState.
	StateColumn = "State"
	// StartTimeColumn is bucketed by year in YearlyStats.
	StartTimeColumn = "Start_Time"
)

var (
	ErrEmptyHeader   = errors.New("dataset has no header row")
	ErrMissingColumn = errors.New("dataset is missing a required column")
	ErrInvalidPage   = errors.New("number of rows and page number must be positive integers")
)

// missingValues are the cell spellings treated as absent.
var missingValues = map[string]struct{}{
	"": {}, "NaN": {}, "nan": {}, "-NaN": {}, "-nan": {}, "NA": {}, "N/A": {}, "n/a": {},
	"#N/A": {}, "<NA>": {}, "null": {}, "NULL": {}, "None": {},
}

type Dataset struct {
	columns []string
	kinds   []Kind
	index   map[string]int
	rows    [][]string
}

// Parse reads a CSV document whose first row is the header.
func Parse(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyHeader
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) == 1 && strings.TrimSpace(header[0]) == "" {
		return nil, ErrEmptyHeader
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV rows: %w", err)
		}
		for i, cell := range record {
			record[i] = normalizeCell(cell)
		}
		rows = append(rows, record)
	}

	return New(header, inferKinds(len(header), rows), rows)
}

// ParseFile parses the CSV file at path.
func ParseFile(path string) (*Dataset, error) {
	return ParseFileContext(context.Background(), path)
}

// ParseFileContext parses the CSV file at path and stops with ctx.Err() once
// ctx is done.
func ParseFileContext(ctx context.Context, path string) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close() // nolint:errcheck

	ds, err := Parse(contextReader{ctx: ctx, r: f})
	if err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	return ds, nil
}

// contextReader fails reads once ctx is done, so a parse of a large file can
// be abandoned between buffer fills.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// New builds a Dataset from already-normalised rows. Every row must have one
// cell per column; the slices are owned by the Dataset afterwards.
func New(columns []string, kinds []Kind, rows [][]string) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, ErrEmptyHeader
	}
	if len(kinds) != len(columns) {
		return nil, fmt.Errorf("got %d column kinds for %d columns", len(kinds), len(columns))
	}

	index := make(map[string]int, len(columns))
	for i, name := range columns {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		index[name] = i
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d fields, want %d", i, len(row), len(columns))
		}
	}

	return &Dataset{
		columns: columns,
		kinds:   kinds,
		index:   index,
		rows:    rows,
	}, nil
}

// Columns returns the column names in file order.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.columns))
	copy(out, d.columns)
	return out
}

// Kinds returns the inferred kind of each column, aligned with Columns.
func (d *Dataset) Kinds() []Kind {
	out := make([]Kind, len(d.kinds))
	copy(out, d.kinds)
	return out
}

// Len is the number of data rows.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// Row returns the normalised cells of row i.
func (d *Dataset) Row(i int) []string {
	return d.rows[i]
}

// Record returns row i as an encodable record.
func (d *Dataset) Record(i int) Record {
	return Record{columns: d.columns, kinds: d.kinds, cells: d.rows[i]}
}

// Records returns rows [from, to) clipped to the table bounds.
func (d *Dataset) Records(from, to int) []Record {
	from = max(from, 0)
	to = min(to, len(d.rows))
	if from >= to {
		return []Record{}
	}

	out := make([]Record, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, d.Record(i))
	}
	return out
}

func (d *Dataset) column(name string) (int, error) {
	i, ok := d.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	return i, nil
}

func normalizeCell(cell string) string {
	if _, missing := missingValues[strings.TrimSpace(cell)]; missing {
		return ""
	}
	return cell
}
