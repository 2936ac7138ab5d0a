package app

import (
	"log/slog"

	"github.com/usaccidents/accidents-api/internal/accidents"
	"github.com/usaccidents/accidents-api/internal/appconf"
	"github.com/usaccidents/accidents-api/internal/blobstore"
	"github.com/usaccidents/accidents-api/internal/metrics"
)

// Application holds the dependencies for our HTTP handlers, helpers,
// and middleware.
type Application struct {
	Config  appconf.Config
	Logger  *slog.Logger
	Manager *accidents.Manager
	Blobs   blobstore.Store
	Metrics *metrics.Metrics
}
