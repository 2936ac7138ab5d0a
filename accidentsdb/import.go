package accidentsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/usaccidents/accidents-api/internal/dataset"
	"github.com/usaccidents/accidents-api/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// importBatchSize is the number of rows per multi-row INSERT.
const importBatchSize = 500

// ImportDataset replaces the stored dataset with ds in a single transaction.
// source is recorded in the imports table.
func (c *Client) ImportDataset(ctx context.Context, ds *dataset.Dataset, source string) (err error) {
	ctx, span := tracer.Start(ctx, "accidentsdb.ImportDataset")
	defer span.End()
	span.SetAttributes(
		attribute.String("store.driver", c.config.Driver),
		attribute.Int("dataset.rows", ds.Len()),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	startTime := time.Now()
	defer func() {
		c.importRuntime = time.Since(startTime)
		if c.config.verbose {
			logging.LogOperation(c.config.logger(), "dataset_imported",
				slog.String("source", source),
				slog.Int("rows", ds.Len()),
				slog.Duration("duration", c.importRuntime))
		}
	}()

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer logging.SafeRollbackWithLogging(tx, c.config.logger(), "import_dataset")

	for _, stmt := range []string{"DELETE FROM accidents", "DELETE FROM dataset_columns"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error clearing store: %w", err)
		}
	}

	if err := insertColumns(ctx, tx, ds); err != nil {
		return err
	}

	for start := 0; start < ds.Len(); start += importBatchSize {
		end := min(start+importBatchSize, ds.Len())
		if err := insertRowBatch(ctx, tx, ds, start, end); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO imports (source, row_count, imported_at) VALUES (?, ?, ?)",
		source, ds.Len(), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("error recording import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func insertColumns(ctx context.Context, tx *sql.Tx, ds *dataset.Dataset) error {
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO dataset_columns (position, name, kind) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("error preparing statement: %w", err)
	}
	defer stmt.Close() // nolint:errcheck

	kinds := ds.Kinds()
	for i, name := range ds.Columns() {
		if _, err := stmt.ExecContext(ctx, i, name, kinds[i].String()); err != nil {
			return fmt.Errorf("error inserting column %q: %w", name, err)
		}
	}
	return nil
}

func insertRowBatch(ctx context.Context, tx *sql.Tx, ds *dataset.Dataset, start, end int) error {
	stateCol, yearCol := columnIndex(ds, dataset.StateColumn), columnIndex(ds, dataset.StartTimeColumn)

	var query strings.Builder
	query.WriteString("INSERT INTO accidents (row_index, state, start_year, record) VALUES ")
	args := make([]any, 0, (end-start)*4)

	for i := start; i < end; i++ {
		if i > start {
			query.WriteString(", ")
		}
		query.WriteString("(?, ?, ?, ?)")

		row := ds.Row(i)
		record, err := encodeRow(row)
		if err != nil {
			return fmt.Errorf("error encoding row %d: %w", i, err)
		}

		var state sql.NullString
		if stateCol >= 0 && row[stateCol] != "" {
			state = sql.NullString{String: row[stateCol], Valid: true}
		}
		var year sql.NullInt64
		if yearCol >= 0 {
			if y, ok := dataset.ParseYear(row[yearCol]); ok {
				year = sql.NullInt64{Int64: int64(y), Valid: true}
			}
		}

		args = append(args, i, state, year, record)
	}

	if _, err := tx.ExecContext(ctx, query.String(), args...); err != nil {
		return fmt.Errorf("error inserting rows %d-%d: %w", start, end-1, err)
	}
	return nil
}

// encodeRow stores a row as a JSON array with null for missing cells.
func encodeRow(row []string) (string, error) {
	cells := make([]*string, len(row))
	for i := range row {
		if row[i] != "" {
			cells[i] = &row[i]
		}
	}
	b, err := json.Marshal(cells)
	return string(b), err
}

func decodeRow(record string, width int) ([]string, error) {
	var cells []*string
	if err := json.Unmarshal([]byte(record), &cells); err != nil {
		return nil, err
	}
	if len(cells) != width {
		return nil, fmt.Errorf("stored row has %d cells, want %d", len(cells), width)
	}
	row := make([]string, width)
	for i, cell := range cells {
		if cell != nil {
			row[i] = *cell
		}
	}
	return row, nil
}

func columnIndex(ds *dataset.Dataset, name string) int {
	for i, col := range ds.Columns() {
		if col == name {
			return i
		}
	}
	return -1
}
