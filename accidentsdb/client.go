package accidentsdb

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/usaccidents/accidents-api/internal/appconf"
	"go.opentelemetry.io/otel"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed schema_sqlite.sql
var sqliteDDL string

//go:embed schema_mysql.sql
var mysqlDDL string

var tracer = otel.Tracer("github.com/usaccidents/accidents-api/accidentsdb")

var (
	ErrEmptyStore           = errors.New("store holds no dataset")
	ErrUnsupportedDriver    = errors.New("unsupported store driver")
	errTestDBMustBeInMemory = errors.New("test database must use in-memory storage")
)

// Client is the main entry point for the library
type Client struct {
	config Config
	DB     *sql.DB

	importRuntime time.Duration
}

// NewClient opens the database and applies the schema.
func NewClient(config Config) (*Client, error) {
	db, err := createDB(config)
	if err != nil {
		return nil, err
	}
	if config.verbose {
		config.logger().Info("store schema ready", "driver", config.Driver)
	}

	return &Client{
		config: config,
		DB:     db,
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// ImportRuntime reports how long the last ImportDataset took.
func (c *Client) ImportRuntime() time.Duration {
	return c.importRuntime
}

func createDB(config Config) (*sql.DB, error) {
	var ddl string
	switch config.Driver {
	case DriverSQLite:
		if config.Env == appconf.Test && config.DSN != ":memory:" {
			return nil, fmt.Errorf("%w (got %s)", errTestDBMustBeInMemory, config.DSN)
		}
		ddl = sqliteDDL
	case DriverMySQL:
		ddl = mysqlDDL
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, config.Driver)
	}

	dsn := config.DSN
	if config.Driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(config.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	configurePool(db, config)

	ctx := context.Background()
	if err := performDatabaseMigration(ctx, db, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error performing database migration: %w", err)
	}
	return db, nil
}

func configurePool(db *sql.DB, config Config) {
	if config.Driver == DriverSQLite && config.DSN == ":memory:" {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		return
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
}

// sqlitePragmas are run by the driver on every new connection. Pragmas are
// per connection, so setting them once through the pool would miss the rest.
var sqlitePragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "1"},
}

// sqliteDSN appends the connection pragmas to dsn unless the caller already
// set them.
func sqliteDSN(dsn string) string {
	var params []string
	for _, pragma := range sqlitePragmas {
		if strings.Contains(dsn, "_pragma="+pragma.name) {
			continue
		}
		params = append(params, fmt.Sprintf("_pragma=%s(%s)", pragma.name, pragma.value))
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func performDatabaseMigration(ctx context.Context, db *sql.DB, ddl string) error {
	statements := strings.Split(ddl, "-- migrate")
	for _, stmt := range statements {
		trimmedStmt := strings.TrimSpace(stmt)
		if trimmedStmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, trimmedStmt); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", trimmedStmt, err)
		}
	}
	return nil
}
