// Package app initializes and holds long-lived services for one command run,
// acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/classical-corpus/internal/catalog"
	"github.com/JakeFAU/classical-corpus/internal/config"
	"github.com/JakeFAU/classical-corpus/internal/corpus"
	"github.com/JakeFAU/classical-corpus/internal/identity"
	"github.com/JakeFAU/classical-corpus/internal/metrics"
	"github.com/JakeFAU/classical-corpus/internal/storage"
	"github.com/JakeFAU/classical-corpus/internal/transport"
)

// App holds the shared services for a command: configuration, logger,
// catalog, document store and metrics recorder.
type App struct {
	config  config.Config
	logger  *zap.Logger
	catalog catalog.Catalog
	store   *corpus.Store
	metrics *metrics.Recorder
	closers []func() error
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.config
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetCatalog returns the work catalog.
func (a *App) GetCatalog() catalog.Catalog {
	return a.catalog
}

// GetStore returns the document store.
func (a *App) GetStore() *corpus.Store {
	return a.store
}

// GetMetrics returns the run's metrics recorder.
func (a *App) GetMetrics() *metrics.Recorder {
	return a.metrics
}

// NewTransport builds a fetch transport with the default identity profiles.
func (a *App) NewTransport(cfg transport.Config) (*transport.Transport, error) {
	pool, err := identity.NewPool(identity.DefaultProfiles(), nil)
	if err != nil {
		return nil, fmt.Errorf("build identity pool: %w", err)
	}
	t, err := transport.New(cfg, pool, a.metrics, a.logger.Named("transport"))
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	return t, nil
}

// NewApp creates the services described by cfg. It fails fast if the
// catalog, the output directory or the snapshot mirror cannot be opened.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	a := &App{
		config:  cfg,
		logger:  logger,
		catalog: cat,
		metrics: metrics.NewRecorder(),
	}

	mirror, err := a.newMirror(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot mirror: %w", err)
	}

	store, err := corpus.NewStore(cfg.Output.Dir, mirror, logger.Named("store"))
	if err != nil {
		_ = a.closeAll()
		return nil, fmt.Errorf("failed to initialize document store: %w", err)
	}
	a.store = store
	return a, nil
}

func (a *App) newMirror(ctx context.Context) (storage.Provider, error) {
	out := a.config.Output
	switch {
	case out.MirrorBucket != "":
		a.logger.Info("mirroring snapshots to GCS", zap.String("bucket", out.MirrorBucket), zap.String("prefix", out.MirrorPrefix))
		gcs, err := storage.NewGCSProvider(ctx, out.MirrorBucket, out.MirrorPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, gcs.Close)
		return gcs, nil
	case out.MirrorDir != "":
		a.logger.Info("mirroring snapshots to directory", zap.String("dir", out.MirrorDir))
		local, err := storage.NewLocalProvider(out.MirrorDir)
		if err != nil {
			return nil, err
		}
		return local, nil
	default:
		return &storage.NoOpProvider{}, nil
	}
}

func (a *App) closeAll() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Close writes the metrics textfile, releases clients and flushes the logger.
func (a *App) Close() {
	if err := a.metrics.WriteTextfile(a.config.Metrics.Textfile); err != nil {
		a.logger.Warn("Error writing metrics textfile", zap.Error(err))
	}
	if err := a.closeAll(); err != nil {
		a.logger.Warn("Error closing services", zap.Error(err))
	}
	_ = a.logger.Sync()
}
