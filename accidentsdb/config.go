package accidentsdb

import (
	"log/slog"

	"github.com/usaccidents/accidents-api/internal/appconf"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds configuration options for the Client
type Config struct {
	Driver  string // sqlite or mysql
	DSN     string // file path or ":memory:" for sqlite, DSN for mysql
	Env     appconf.Environment
	Logger  *slog.Logger
	verbose bool
}

func NewConfig(driver, dsn string, env appconf.Environment, verbose bool) Config {
	return Config{
		Driver:  driver,
		DSN:     dsn,
		Env:     env,
		verbose: verbose,
	}
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
