package accidents

import (
	"log/slog"
	"time"

	"github.com/usaccidents/accidents-api/internal/appconf"
)

type Config struct {
	DatasetPath     string
	DatasetURL      string
	RefreshInterval time.Duration
	StoreDriver     string
	StoreDSN        string
	Env             appconf.Environment
	Verbose         bool
	Logger          *slog.Logger
	Observer        LoadObserver
}

// LoadObserver is told about every dataset load attempt.
type LoadObserver interface {
	ObserveDatasetLoad(source string, rows int, duration time.Duration, err error)
}

func (config Config) remoteSource() bool {
	return config.DatasetURL != ""
}

func (config Config) storeEnabled() bool {
	return config.StoreDSN != ""
}

func (config Config) refreshEnabled() bool {
	return config.remoteSource() && config.RefreshInterval > 0
}

func (config Config) logger() *slog.Logger {
	if config.Logger != nil {
		return config.Logger
	}
	return slog.Default()
}
