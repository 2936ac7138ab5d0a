// Package accidents owns the live accidents dataset: where it is loaded
// from, when it is refreshed, and safe concurrent access to it.
package accidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/usaccidents/accidents-api/accidentsdb"
	"github.com/usaccidents/accidents-api/internal/dataset"
	"github.com/usaccidents/accidents-api/internal/logging"
)

var ErrDatasetNotLoaded = errors.New("dataset not loaded")

// Manager holds the current dataset and reloads it when the source is remote.
type Manager struct {
	config      Config
	logger      *slog.Logger
	store       *accidentsdb.Client
	data        *dataset.Dataset
	source      string
	lastUpdated time.Time
	loadErr     error
	mu          sync.RWMutex

	shutdownChan chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
	startOnce    sync.Once
}

// NewManager prepares a manager without loading anything. When a store DSN
// is configured the store is opened here.
func NewManager(config Config) (*Manager, error) {
	manager := &Manager{
		config:       config,
		logger:       config.logger().With(slog.String("component", "dataset_manager")),
		shutdownChan: make(chan struct{}),
	}

	if config.storeEnabled() {
		dbConfig := accidentsdb.NewConfig(config.StoreDriver, config.StoreDSN, config.Env, config.Verbose)
		dbConfig.Logger = config.Logger
		store, err := accidentsdb.NewClient(dbConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create dataset store client: %w", err)
		}
		manager.store = store
	}

	return manager, nil
}

// InitManager creates a manager, loads the dataset and starts background
// refreshes.
func InitManager(ctx context.Context, config Config) (*Manager, error) {
	manager, err := NewManager(config)
	if err != nil {
		return nil, err
	}
	if err := manager.Load(ctx); err != nil {
		manager.Shutdown()
		return nil, err
	}
	manager.Start()
	return manager, nil
}

// Load loads the dataset from the configured source. The store is preferred
// when it already holds a dataset; a dataset read from CSV is written back to
// an empty store.
func (manager *Manager) Load(ctx context.Context) error {
	if manager.store != nil {
		_, err := manager.loadFromStore(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, accidentsdb.ErrEmptyStore) {
			return err
		}
	}

	ds, source, err := manager.loadFromSource(ctx)
	if err != nil {
		return err
	}

	if manager.store != nil {
		if err := manager.store.ImportDataset(ctx, ds, source); err != nil {
			logging.LogError(manager.logger, "failed to import dataset into store", err,
				slog.String("source", source))
		}
	}
	return nil
}

func (manager *Manager) loadFromStore(ctx context.Context) (*dataset.Dataset, error) {
	source := "store:" + manager.config.StoreDriver
	start := time.Now()
	ds, err := manager.store.LoadDataset(ctx)
	manager.observe(source, ds, time.Since(start), err)
	if err != nil {
		if !errors.Is(err, accidentsdb.ErrEmptyStore) {
			manager.setLoadError(err)
		}
		return nil, err
	}
	manager.setDataset(ds, source)
	return ds, nil
}

func (manager *Manager) loadFromSource(ctx context.Context) (*dataset.Dataset, string, error) {
	source := manager.config.DatasetPath
	if manager.config.remoteSource() {
		source = manager.config.DatasetURL
	}

	start := time.Now()
	ds, err := loadDataset(ctx, source, manager.config.remoteSource())
	manager.observe(source, ds, time.Since(start), err)
	if err != nil {
		manager.setLoadError(err)
		return nil, source, err
	}
	manager.setDataset(ds, source)
	return ds, source, nil
}

// Start launches the refresh loop when the source is a URL with a refresh
// interval. It is safe to call more than once.
func (manager *Manager) Start() {
	if !manager.config.refreshEnabled() {
		return
	}
	manager.startOnce.Do(func() {
		manager.wg.Add(1)
		go manager.refreshPeriodically()
	})
}

// Shutdown gracefully shuts down the manager and its background goroutines
func (manager *Manager) Shutdown() {
	manager.shutdownOnce.Do(func() {
		close(manager.shutdownChan)
		manager.wg.Wait()
		if manager.store != nil {
			logging.SafeCloseWithLogging(manager.store, manager.logger, "close_dataset_store")
		}
	})
}

// Dataset returns the current dataset.
func (manager *Manager) Dataset() (*dataset.Dataset, error) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	if manager.data == nil {
		if manager.loadErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatasetNotLoaded, manager.loadErr)
		}
		return nil, ErrDatasetNotLoaded
	}
	return manager.data, nil
}

// Loaded reports whether a dataset is available.
func (manager *Manager) Loaded() bool {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return manager.data != nil
}

func (manager *Manager) LastUpdated() time.Time {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return manager.lastUpdated
}

// Source describes where the current dataset came from.
func (manager *Manager) Source() string {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return manager.source
}

// Store returns the SQL store, or nil when none is configured.
func (manager *Manager) Store() *accidentsdb.Client {
	return manager.store
}

// PrintStatistics logs the shape of the current dataset.
func (manager *Manager) PrintStatistics() {
	ds, err := manager.Dataset()
	if err != nil {
		logging.LogError(manager.logger, "no dataset statistics available", err)
		return
	}
	logging.LogOperation(manager.logger, "dataset_statistics",
		slog.String("source", manager.Source()),
		slog.Int("rows", ds.Len()),
		slog.Int("columns", len(ds.Columns())),
		slog.Time("last_updated", manager.LastUpdated()))
}

func (manager *Manager) setDataset(ds *dataset.Dataset, source string) {
	manager.mu.Lock()
	manager.data = ds
	manager.source = source
	manager.lastUpdated = time.Now()
	manager.loadErr = nil
	manager.mu.Unlock()

	if manager.config.Verbose {
		logging.LogOperation(manager.logger, "dataset_updated",
			slog.String("source", source),
			slog.Int("rows", ds.Len()))
	}
}

func (manager *Manager) setLoadError(err error) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	manager.loadErr = err
}

func (manager *Manager) observe(source string, ds *dataset.Dataset, d time.Duration, err error) {
	if manager.config.Observer == nil {
		return
	}
	rows := 0
	if ds != nil {
		rows = ds.Len()
	}
	manager.config.Observer.ObserveDatasetLoad(source, rows, d, err)
}
