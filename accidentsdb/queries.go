package accidentsdb

import (
	"context"
	"fmt"

	"github.com/usaccidents/accidents-api/internal/dataset"
)

// LoadDataset rebuilds the stored dataset in row order.
func (c *Client) LoadDataset(ctx context.Context) (*dataset.Dataset, error) {
	ctx, span := tracer.Start(ctx, "accidentsdb.LoadDataset")
	defer span.End()

	columns, kinds, err := c.columns(ctx)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, ErrEmptyStore
	}

	total, err := c.Total(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := c.DB.QueryContext(ctx, "SELECT record FROM accidents ORDER BY row_index")
	if err != nil {
		return nil, fmt.Errorf("error querying rows: %w", err)
	}
	defer rows.Close() // nolint:errcheck

	out := make([][]string, 0, total)
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		row, err := decodeRow(record, len(columns))
		if err != nil {
			return nil, fmt.Errorf("error decoding row %d: %w", len(out), err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return dataset.New(columns, kinds, out)
}

func (c *Client) columns(ctx context.Context) ([]string, []dataset.Kind, error) {
	rows, err := c.DB.QueryContext(ctx, "SELECT name, kind FROM dataset_columns ORDER BY position")
	if err != nil {
		return nil, nil, fmt.Errorf("error querying columns: %w", err)
	}
	defer rows.Close() // nolint:errcheck

	var columns []string
	var kinds []dataset.Kind
	for rows.Next() {
		var name, kindName string
		if err := rows.Scan(&name, &kindName); err != nil {
			return nil, nil, fmt.Errorf("error scanning column: %w", err)
		}
		kind, err := dataset.ParseKind(kindName)
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, name)
		kinds = append(kinds, kind)
	}
	return columns, kinds, rows.Err()
}

// Total is the number of stored rows.
func (c *Client) Total(ctx context.Context) (int, error) {
	var total int
	if err := c.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM accidents").Scan(&total); err != nil {
		return 0, fmt.Errorf("error counting rows: %w", err)
	}
	return total, nil
}

// CountByState groups stored rows by state, largest first.
func (c *Client) CountByState(ctx context.Context) ([]dataset.StateCount, error) {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT state, COUNT(*) AS accident_count
		FROM accidents
		WHERE state IS NOT NULL
		GROUP BY state
		ORDER BY accident_count DESC, state ASC`)
	if err != nil {
		return nil, fmt.Errorf("error counting by state: %w", err)
	}
	defer rows.Close() // nolint:errcheck

	out := []dataset.StateCount{}
	for rows.Next() {
		var sc dataset.StateCount
		if err := rows.Scan(&sc.State, &sc.AccidentCount); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// YearlyStats groups stored rows by start year in ascending order.
func (c *Client) YearlyStats(ctx context.Context) ([]dataset.YearCount, error) {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT start_year, COUNT(*)
		FROM accidents
		WHERE start_year IS NOT NULL
		GROUP BY start_year
		ORDER BY start_year`)
	if err != nil {
		return nil, fmt.Errorf("error counting by year: %w", err)
	}
	defer rows.Close() // nolint:errcheck

	out := []dataset.YearCount{}
	for rows.Next() {
		var yc dataset.YearCount
		if err := rows.Scan(&yc.Year, &yc.Count); err != nil {
			return nil, err
		}
		out = append(out, yc)
	}
	return out, rows.Err()
}

// LastImportSource returns the source recorded by the most recent import.
func (c *Client) LastImportSource(ctx context.Context) (string, error) {
	var source string
	err := c.DB.QueryRowContext(ctx, "SELECT source FROM imports ORDER BY id DESC LIMIT 1").Scan(&source)
	if err != nil {
		return "", fmt.Errorf("error reading last import: %w", err)
	}
	return source, nil
}
