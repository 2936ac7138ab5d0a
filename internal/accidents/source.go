package accidents

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/usaccidents/accidents-api/internal/dataset"
	"github.com/usaccidents/accidents-api/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/usaccidents/accidents-api/internal/accidents")

// reloadTimeout bounds a single download-and-parse of a remote dataset.
const reloadTimeout = 10 * time.Minute

// loadDataset loads and parses the accidents CSV from either a URL or a
// local file.
func loadDataset(ctx context.Context, source string, remote bool) (ds *dataset.Dataset, err error) {
	ctx, span := tracer.Start(ctx, "accidents.loadDataset")
	defer span.End()
	span.SetAttributes(attribute.String("dataset.source", source), attribute.Bool("dataset.remote", remote))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetAttributes(attribute.Int("dataset.rows", ds.Len()))
	}()

	if !remote {
		return dataset.ParseFileContext(ctx, source)
	}
	return downloadDataset(ctx, source)
}

func downloadDataset(ctx context.Context, url string) (*dataset.Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error building dataset request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading dataset: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body,
		slog.Default().With(slog.String("component", "dataset_downloader")),
		"http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error downloading dataset: unexpected status %s", resp.Status)
	}

	ds, err := dataset.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error parsing dataset from %s: %w", url, err)
	}
	return ds, nil
}

// refreshPeriodically reloads a remote dataset on every tick. A failed
// reload keeps the previous dataset.
func (manager *Manager) refreshPeriodically() {
	defer manager.wg.Done()

	ticker := time.NewTicker(manager.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
			go func() {
				select {
				case <-manager.shutdownChan:
					cancel()
				case <-ctx.Done():
				}
			}()

			ds, source, err := manager.loadFromSource(ctx)
			if err == nil && manager.store != nil {
				if importErr := manager.store.ImportDataset(ctx, ds, source); importErr != nil {
					logging.LogError(manager.logger, "failed to import refreshed dataset", importErr,
						slog.String("source", source))
				}
			}
			cancel()

			if err != nil {
				logging.LogError(manager.logger, "error refreshing dataset", err,
					slog.String("source", manager.config.DatasetURL))
				continue
			}
		case <-manager.shutdownChan:
			manager.logger.Info("shutting down dataset refresh")
			return
		}
	}
}
