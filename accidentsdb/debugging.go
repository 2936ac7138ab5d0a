package accidentsdb

import (
	"context"
	"fmt"
)

// storeTables are the tables created by the schema.
var storeTables = []string{"dataset_columns", "accidents", "imports"}

// TableCounts returns the row count of every store table.
func (c *Client) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(storeTables))
	for _, table := range storeTables {
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
		if err := c.DB.QueryRowContext(ctx, query).Scan(&count); err != nil {
			return nil, fmt.Errorf("error counting %s: %w", table, err)
		}
		counts[table] = count
	}
	return counts, nil
}
