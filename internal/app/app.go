package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/chrissnell/designflood/internal/atlas"
	"github.com/chrissnell/designflood/internal/cache"
	"github.com/chrissnell/designflood/internal/controllers/restserver"
	"github.com/chrissnell/designflood/internal/observability"
	"github.com/chrissnell/designflood/internal/pipeline"
	"github.com/chrissnell/designflood/internal/storm"
	"github.com/chrissnell/designflood/pkg/config"
)

// App represents the main application
type App struct {
	cfg    *config.ConfigData
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// PipelineOptions converts the configured defaults to pipeline options
func PipelineOptions(d config.DefaultsData) (pipeline.Options, error) {
	mode, err := storm.ParseExponentMode(d.ExponentMode)
	if err != nil {
		return pipeline.Options{}, err
	}
	source, err := pipeline.ParseMuSource(d.MuSource)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Ratio:         d.Ratio,
		Mode:          mode,
		Concentration: atlas.ConcentrationMethod(d.Concentration),
		Step:          d.Step,
		Tolerance:     d.Tolerance,
		MaxIterations: d.MaxIterations,
		MuSource:      source,
	}, nil
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ds, err := atlas.Open(ctx, a.cfg.Dataset.Backend, a.cfg.Dataset.Path)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	a.logger.Infof("loaded dataset %s with %d regions from %s", ds.Name(), len(ds.Regions()), a.cfg.Dataset.Path)

	metrics := observability.NewMetrics()
	metrics.DatasetRegions.Set(float64(len(ds.Regions())))

	opts, err := PipelineOptions(a.cfg.Defaults)
	if err != nil {
		return err
	}
	p := pipeline.New(ds, opts, metrics, a.logger)
	analyzer := pipeline.NewFrequencyAnalyzer(metrics, a.logger)

	resultCache, err := cache.New(ctx, a.cfg.Cache, a.logger)
	if err != nil {
		return err
	}
	if resultCache != nil {
		defer resultCache.Close()
	}

	if a.cfg.Dataset.Reload != "" {
		reloader, err := NewReloader(ctx, a.cfg.Dataset, p, metrics, a.logger)
		if err != nil {
			return err
		}
		reloader.Start()
		defer reloader.Stop()
	}

	rest, err := restserver.NewController(ctx, &wg, a.cfg, restserver.Services{
		Pipeline: p,
		Analyzer: analyzer,
		Cache:    resultCache,
		Metrics:  metrics,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := rest.StartController(); err != nil {
		return err
	}

	a.logger.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	cancel()

	a.logger.Info("waiting for the REST server to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}
