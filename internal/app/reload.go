package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chrissnell/designflood/internal/atlas"
	"github.com/chrissnell/designflood/internal/observability"
	"github.com/chrissnell/designflood/internal/pipeline"
	"github.com/chrissnell/designflood/pkg/config"
)

// Reloader re-reads the dataset on a cron schedule and swaps it into the
// pipeline. Runs in flight keep the dataset they started with.
type Reloader struct {
	cron     *cron.Cron
	ctx      context.Context
	dataset  config.DatasetData
	pipeline *pipeline.Pipeline
	metrics  *observability.Metrics
	logger   *zap.SugaredLogger
}

// NewReloader registers the reload job for cfg.Reload. The schedule uses the
// six-field, seconds-first cron syntax.
func NewReloader(ctx context.Context, cfg config.DatasetData, p *pipeline.Pipeline, metrics *observability.Metrics, logger *zap.SugaredLogger) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Reloader{
		cron:     cron.New(cron.WithParser(config.ReloadParser)),
		ctx:      ctx,
		dataset:  cfg,
		pipeline: p,
		metrics:  metrics,
		logger:   logger,
	}
	if _, err := r.cron.AddFunc(cfg.Reload, func() { r.Reload() }); err != nil {
		return nil, fmt.Errorf("failed to schedule dataset reload %q: %w", cfg.Reload, err)
	}
	return r, nil
}

// Start begins running the schedule in the background.
func (r *Reloader) Start() {
	r.cron.Start()
	r.logger.Infof("dataset reload scheduled: %s", r.dataset.Reload)
}

// Stop halts the schedule and waits for a running reload to finish.
func (r *Reloader) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("dataset reload stopped")
}

// Reload loads the dataset now. A failed load leaves the current dataset in
// place.
func (r *Reloader) Reload() error {
	ds, err := atlas.Open(r.ctx, r.dataset.Backend, r.dataset.Path)
	if err != nil {
		r.metrics.DatasetReloads.WithLabelValues("error").Inc()
		r.logger.Errorf("dataset reload from %s failed: %v", r.dataset.Path, err)
		return err
	}

	old := r.pipeline.Dataset()
	r.pipeline.SetDataset(ds)
	r.metrics.DatasetReloads.WithLabelValues("ok").Inc()
	if old.Fingerprint() == ds.Fingerprint() {
		r.logger.Debugf("reloaded dataset %s; unchanged", ds.Name())
	} else {
		r.logger.Infof("reloaded dataset %s with %d regions (fingerprint %s)", ds.Name(), len(ds.Regions()), ds.Fingerprint())
	}
	return nil
}
