package accidentsdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usaccidents/accidents-api/internal/appconf"
	"github.com/usaccidents/accidents-api/internal/dataset"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(NewConfig(DriverSQLite, ":memory:", appconf.Test, false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func loadSample(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.ParseFile(filepath.Join("..", "testdata", "accidents_sample.csv"))
	require.NoError(t, err)
	return ds
}

func TestNewClient_RejectsFileDatabaseInTests(t *testing.T) {
	client, err := NewClient(NewConfig(DriverSQLite, filepath.Join(t.TempDir(), "x.db"), appconf.Test, false))
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "test database must use in-memory storage")
}

func TestNewClient_UnsupportedDriver(t *testing.T) {
	_, err := NewClient(NewConfig("postgres", "whatever", appconf.Test, false))
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestNewClient_FileDatabaseOutsideTests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accidents.db")
	client, err := NewClient(NewConfig(DriverSQLite, path, appconf.Development, false))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	assert.Equal(t, 25, client.DB.Stats().MaxOpenConnections)
}

func TestNewClient_PragmasApplyToEveryConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accidents.db")
	client, err := NewClient(NewConfig(DriverSQLite, path, appconf.Development, false))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	// Holding the first connection forces the pool to open a second one.
	conns := make([]*sql.Conn, 2)
	for i := range conns {
		conn, err := client.DB.Conn(ctx)
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()
		conns[i] = conn
	}

	for i, conn := range conns {
		var busyTimeout, foreignKeys int
		var journalMode string
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, 5000, busyTimeout, "connection %d", i)
		assert.Equal(t, 1, foreignKeys, "connection %d", i)
		assert.Equal(t, "wal", strings.ToLower(journalMode), "connection %d", i)
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		"accidents.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		sqliteDSN("accidents.db"))
	assert.Equal(t,
		"file:accidents.db?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		sqliteDSN("file:accidents.db?mode=rwc"))
	assert.Equal(t,
		"accidents.db?_pragma=busy_timeout(100)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		sqliteDSN("accidents.db?_pragma=busy_timeout(100)"),
		"a caller supplied pragma wins")
}

func TestTableCountsOnEmptyStore(t *testing.T) {
	client := newTestClient(t)

	counts, err := client.TableCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"dataset_columns": 0, "accidents": 0, "imports": 0}, counts)
}

func TestLoadDatasetFromEmptyStore(t *testing.T) {
	client := newTestClient(t)

	_, err := client.LoadDataset(context.Background())
	assert.ErrorIs(t, err, ErrEmptyStore)
}

func TestImportAndLoadRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	ds := loadSample(t)

	require.NoError(t, client.ImportDataset(ctx, ds, "accidents_sample.csv"))

	loaded, err := client.LoadDataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, ds.Columns(), loaded.Columns())
	assert.Equal(t, ds.Kinds(), loaded.Kinds())
	require.Equal(t, ds.Len(), loaded.Len())
	for i := 0; i < ds.Len(); i++ {
		assert.Equal(t, ds.Row(i), loaded.Row(i), "row %d", i)
	}

	source, err := client.LastImportSource(ctx)
	require.NoError(t, err)
	assert.Equal(t, "accidents_sample.csv", source)

	counts, err := client.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, counts["accidents"])
	assert.Equal(t, 14, counts["dataset_columns"])
	assert.Equal(t, 1, counts["imports"])
}

func TestImportReplacesPreviousContents(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.ImportDataset(ctx, loadSample(t), "first"))

	small, err := dataset.New([]string{"State"}, []dataset.Kind{dataset.KindString}, [][]string{{"WA"}})
	require.NoError(t, err)
	require.NoError(t, client.ImportDataset(ctx, small, "second"))

	total, err := client.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	loaded, err := client.LoadDataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"State"}, loaded.Columns())
}

func TestImportSpansSeveralBatches(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	rows := make([][]string, importBatchSize*2+7)
	for i := range rows {
		rows[i] = []string{"CA", "2020-01-01 00:00:00"}
	}
	ds, err := dataset.New(
		[]string{"State", "Start_Time"},
		[]dataset.Kind{dataset.KindString, dataset.KindString},
		rows,
	)
	require.NoError(t, err)

	require.NoError(t, client.ImportDataset(ctx, ds, "generated"))

	total, err := client.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(rows), total)
}

func TestStoreAggregationsMatchInMemory(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	ds := loadSample(t)
	require.NoError(t, client.ImportDataset(ctx, ds, "accidents_sample.csv"))

	wantStates, err := ds.CountByState()
	require.NoError(t, err)
	gotStates, err := client.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantStates, gotStates)

	wantYears, err := ds.YearlyStats()
	require.NoError(t, err)
	gotYears, err := client.YearlyStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantYears, gotYears)
}

func TestConcurrentReads(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, client.ImportDataset(ctx, loadSample(t), "accidents_sample.csv"))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.CountByState(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestDecodeRowRejectsWrongWidth(t *testing.T) {
	_, err := decodeRow(`["a",null]`, 3)
	assert.Error(t, err)

	row, err := decodeRow(`["a",null,"c"]`, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "c"}, row)
}
