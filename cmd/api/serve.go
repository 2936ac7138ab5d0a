package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/usaccidents/accidents-api/internal/accidents"
	"github.com/usaccidents/accidents-api/internal/app"
	"github.com/usaccidents/accidents-api/internal/appconf"
	"github.com/usaccidents/accidents-api/internal/blobstore"
	"github.com/usaccidents/accidents-api/internal/logging"
	"github.com/usaccidents/accidents-api/internal/metrics"
	"github.com/usaccidents/accidents-api/internal/restapi"
	"github.com/usaccidents/accidents-api/internal/telemetry"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultShutdownTimeout = 15 * time.Second
	tracerFlushTimeout     = 5 * time.Second
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the accidents dataset over HTTP on 0.0.0.0:$PORT.

The listener opens before the dataset loads, so /healthz answers at once
while /readyz reports 503 until the dataset is in. A dataset that fails to
load does not stop the server: dataset endpoints answer 500 until a refresh
succeeds.`,
		Example: `  # Serve a local CSV on the default port
  accidents-api serve --dataset-path ./US_Accidents_March23.csv

  # Serve on another port with local object storage
  PORT=9090 accidents-api serve --blob-backend local --blob-dir ./blobs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.Addr())
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
			}

			srv, err := newServer(ctx, cfg, logger)
			if err != nil {
				_ = ln.Close()
				logging.LogError(logger, "failed to initialize server", err)
				return err
			}
			defer srv.close()

			return srv.run(ctx, ln)
		},
	}

	appconf.RegisterFlags(cmd.Flags())
	return cmd
}

// server owns every long-lived component of the serve command.
type server struct {
	config  appconf.Config
	logger  *slog.Logger
	tracer  *sdktrace.TracerProvider
	manager *accidents.Manager
	blobs   blobstore.Store
	api     *restapi.RestAPI
	http    *http.Server
}

func newServer(ctx context.Context, cfg appconf.Config, logger *slog.Logger) (*server, error) {
	s := &server{config: cfg, logger: logger}
	if err := s.init(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *server) init(ctx context.Context) error {
	tracer, err := telemetry.Setup(telemetry.Options{
		Exporter:       s.config.Tracing,
		ServiceVersion: version,
		Environment:    s.config.Env.String(),
	})
	if err != nil {
		return err
	}
	s.tracer = tracer

	m := metrics.New()

	s.manager, err = accidents.NewManager(accidents.Config{
		DatasetPath:     s.config.DatasetPath,
		DatasetURL:      s.config.DatasetURL,
		RefreshInterval: s.config.RefreshInterval,
		StoreDriver:     s.config.StoreDriver,
		StoreDSN:        s.config.StoreDSN,
		Env:             s.config.Env,
		Verbose:         true,
		Logger:          s.logger,
		Observer:        m,
	})
	if err != nil {
		return err
	}

	blobs, err := openBlobStore(ctx, s.config)
	if err != nil {
		logging.LogError(s.logger, "object storage unavailable", err,
			slog.String("backend", s.config.BlobBackend),
			slog.String("bucket", s.config.Bucket))
	} else {
		s.blobs = blobs
	}

	s.api = restapi.NewRestAPI(&app.Application{
		Config:  s.config,
		Logger:  s.logger,
		Manager: s.manager,
		Blobs:   s.blobs,
		Metrics: m,
	})

	// Uploads may take far longer than the header read, so only the
	// header read is bounded.
	s.http = &http.Server{
		Handler:           s.api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       time.Minute,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}
	return nil
}

func openBlobStore(ctx context.Context, cfg appconf.Config) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case "local":
		store, err := blobstore.NewLocal(cfg.BlobDir, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "gcs":
		store, err := blobstore.NewGCS(ctx, cfg.Bucket, cfg.GCPCredentials)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported blob backend %q", cfg.BlobBackend)
	}
}

// loadDataset runs the initial load while the listener is already serving
// health checks. Refreshes start only once it finishes and the server is
// still running.
func (s *server) loadDataset(ctx context.Context) {
	if err := s.manager.Load(ctx); err != nil {
		logging.LogError(s.logger, "failed to load dataset, serving without it", err)
	} else {
		s.manager.PrintStatistics()
	}
	if ctx.Err() == nil {
		s.manager.Start()
	}
}

// run serves on ln until ctx is cancelled, then drains in-flight requests.
// The dataset loads in the background; /readyz reports 503 until it is in.
func (s *server) run(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.loadDataset(gctx)
		return nil
	})

	g.Go(func() error {
		s.logger.Info("starting server",
			slog.String("addr", ln.Addr().String()),
			slog.String("env", s.config.Env.String()),
			slog.Int("max_in_flight", s.config.MaxInFlight()))
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		s.logger.Info("shutting down server", slog.Duration("timeout", timeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// close releases everything init acquired. Fields left nil by a failed init
// are skipped.
func (s *server) close() {
	if s.api != nil {
		s.api.Shutdown()
	}
	if s.manager != nil {
		s.manager.Shutdown()
	}
	if s.blobs != nil {
		logging.SafeCloseWithLogging(s.blobs, s.logger, "close_blob_store")
	}
	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracerFlushTimeout)
		defer cancel()
		if err := s.tracer.Shutdown(ctx); err != nil {
			logging.LogError(s.logger, "failed to flush traces", err)
		}
	}
}
