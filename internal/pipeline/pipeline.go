// Package pipeline chains the atlas lookups, the design storm, the peak flow
// solver and the hydrograph synthesizer into one design flood computation.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/designflood/internal/atlas"
	"github.com/chrissnell/designflood/internal/flood"
	"github.com/chrissnell/designflood/internal/observability"
	"github.com/chrissnell/designflood/internal/storm"
	"github.com/chrissnell/designflood/pkg/hydroerr"
)

// MuSource selects where the infiltration rate of the peak flow solver comes
// from when the request does not give one.
type MuSource string

const (
	// MuStorm uses the storm's (H24 - R)/24 estimate.
	MuStorm MuSource = "storm"
	// MuRegion uses the region's tabulated rate.
	MuRegion MuSource = "region"
)

// ParseMuSource accepts "", "storm" and "region".
func ParseMuSource(s string) (MuSource, error) {
	switch MuSource(s) {
	case "", MuStorm:
		return MuStorm, nil
	case MuRegion:
		return MuRegion, nil
	}
	return "", &hydroerr.InputError{Field: "mu_source", Message: fmt.Sprintf("unknown infiltration source %q", s)}
}

// Options are the defaults a Pipeline applies to requests that leave a field
// unset.
type Options struct {
	Ratio         float64
	Mode          storm.ExponentMode
	Concentration atlas.ConcentrationMethod
	Step          float64
	Tolerance     float64
	MaxIterations int
	// MuSource applies when a request names neither Mu nor MuSource.
	MuSource MuSource
}

// Request describes one watershed and design frequency.
type Request struct {
	Coordinate atlas.Coordinate
	// F is the area in km², L the main channel length in km and J its slope.
	F, L, J float64
	P       float64

	Ratio         float64
	Mode          storm.ExponentMode
	Runoff        atlas.RunoffCode
	Concentration atlas.ConcentrationMethod
	MuSource      MuSource
	Step          float64

	Mu    *float64
	Imax  *float64
	Pa    *float64
	M     *float64
	Alpha map[atlas.Duration]float64
}

// RegionInfo identifies the region a coordinate fell in.
type RegionInfo struct {
	Code   atlas.RegionCode `json:"code"`
	Name   string           `json:"name"`
	Runoff atlas.RunoffCode `json:"runoff"`
}

// Result is a finished design flood.
type Result struct {
	Region     RegionInfo
	Statistics map[atlas.Duration]atlas.Statistics
	Storm      *storm.Storm
	Theta      float64
	M          float64
	Mu         float64
	MuSource   string
	Peak       flood.PeakFlowResult
	Hydrograph *flood.Hydrograph
}

// Pipeline runs design flood computations against one dataset. It holds no
// per-run state and may be shared between goroutines.
type Pipeline struct {
	dataset atomic.Pointer[atlas.Dataset]
	opts    Options
	metrics *observability.Metrics
	logger  *zap.SugaredLogger
}

// New returns a Pipeline. metrics must not be nil.
func New(ds *atlas.Dataset, opts Options, metrics *observability.Metrics, logger *zap.SugaredLogger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	p := &Pipeline{opts: opts, metrics: metrics, logger: logger}
	p.dataset.Store(ds)
	return p
}

// Dataset returns the dataset the pipeline reads from.
func (p *Pipeline) Dataset() *atlas.Dataset { return p.dataset.Load() }

// SetDataset replaces the dataset. Runs already in progress finish on the
// dataset they started with.
func (p *Pipeline) SetDataset(ds *atlas.Dataset) {
	p.dataset.Store(ds)
	p.metrics.DatasetRegions.Set(float64(len(ds.Regions())))
}

// Run computes the design flood for req.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	res, err := p.run(ctx, req)
	p.metrics.Runs.WithLabelValues("design_flood", Outcome(err)).Inc()
	if err != nil {
		p.logger.Debugf("design flood at %s failed: %v", req.Coordinate, err)
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req Request) (*Result, error) {
	if err := checkContext(ctx, "lookup"); err != nil {
		return nil, err
	}

	ds := p.dataset.Load()
	code, err := ds.Region(req.Coordinate)
	if err != nil {
		return nil, err
	}
	region, err := ds.RegionByCode(code)
	if err != nil {
		return nil, err
	}
	stats := make(map[atlas.Duration]atlas.Statistics, len(atlas.Durations))
	for _, d := range atlas.Durations {
		if stats[d], err = ds.Statistics(req.Coordinate, d); err != nil {
			return nil, err
		}
	}
	exps, err := ds.Exponents(req.Coordinate)
	if err != nil {
		return nil, err
	}

	runoff := req.Runoff
	if runoff == "" {
		runoff = region.DefaultRunoff()
	}
	res := &Result{
		Region:     RegionInfo{Code: code, Name: region.Name(), Runoff: runoff},
		Statistics: stats,
	}
	p.logger.Debugf("coordinate %s is in region %d (%s), runoff relationship %s", req.Coordinate, code, region.Name(), runoff)

	// One infiltration rate drives both the net rain and the peak flow.
	source, err := ParseMuSource(firstString(string(req.MuSource), string(p.opts.MuSource)))
	if err != nil {
		return nil, err
	}
	mu := req.Mu
	switch {
	case req.Mu != nil:
		res.MuSource = "request"
	case source == MuRegion:
		rate := region.InfiltrationRate()
		mu, res.MuSource = &rate, string(MuRegion)
	default:
		res.MuSource = string(MuStorm)
	}

	if err := checkContext(ctx, "storm"); err != nil {
		return nil, err
	}
	start := observability.Clock().Now()
	res.Storm, err = storm.New(storm.Params{
		Statistics: stats,
		Exponents:  exps,
		Region:     code,
		Runoff:     runoff,
		Area:       req.F,
		P:          req.P,
		Ratio:      firstPositive(req.Ratio, p.opts.Ratio),
		Mode:       storm.ExponentMode(firstString(string(req.Mode), string(p.opts.Mode))),
		Mu:         mu,
		Imax:       req.Imax,
		Pa:         req.Pa,
		Alpha:      req.Alpha,
	}, ds, ds)
	p.observe("storm", start)
	if err != nil {
		return nil, fmt.Errorf("design storm: %w", err)
	}
	p.logger.Debugw("design storm", "summary", res.Storm.Summary())

	if res.Theta, err = atlas.Theta(req.F, req.L, req.J); err != nil {
		return nil, err
	}
	if req.M != nil {
		res.M = *req.M
	} else {
		method := atlas.ConcentrationMethod(firstString(string(req.Concentration), string(p.opts.Concentration)))
		if res.M, err = ds.Concentration(code, res.Theta, method); err != nil {
			return nil, fmt.Errorf("concentration parameter: %w", err)
		}
	}

	res.Mu = res.Storm.Mu()
	p.logger.Debugf("theta=%.4f m=%.4f mu=%.4f (%s)", res.Theta, res.M, res.Mu, res.MuSource)

	if err := checkContext(ctx, "peak flow"); err != nil {
		return nil, err
	}
	start = observability.Clock().Now()
	solver := flood.NewPeakFlowSolver(p.opts.Tolerance, p.opts.MaxIterations, p.logger)
	res.Peak, err = solver.Solve(flood.PeakFlowInput{
		F:         req.F,
		L:         req.L,
		J:         req.J,
		S:         res.Storm.S(),
		Exponents: res.Storm.Exponents(),
		Mu:        res.Mu,
		M:         res.M,
	})
	p.observe("peak_flow", start)
	if err != nil {
		return nil, fmt.Errorf("peak flow: %w", err)
	}
	p.metrics.SolverIterations.Observe(float64(res.Peak.Iterations))

	if err := checkContext(ctx, "hydrograph"); err != nil {
		return nil, err
	}
	start = observability.Clock().Now()
	synth := flood.NewSynthesizer(firstPositive(req.Step, p.opts.Step), p.logger)
	res.Hydrograph, err = synth.Synthesize(res.Storm.NetRain(), res.Peak, req.F, res.Storm.RunoffDepth())
	p.observe("hydrograph", start)
	if err != nil {
		return nil, fmt.Errorf("hydrograph: %w", err)
	}

	p.logger.Debugf("design flood qm=%.2f tau=%.3f psi=%.3f peak at %.2fh", res.Peak.Qm, res.Peak.Tau, res.Peak.Psi, res.Hydrograph.PeakTime)
	return res, nil
}

func (p *Pipeline) observe(stage string, start time.Time) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(observability.Clock().Since(start).Seconds())
}

// checkContext reports a cancelled or expired context as a convergence
// failure of the stage about to start.
func checkContext(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return &hydroerr.ConvergenceError{Stage: stage, Message: "computation abandoned", Err: err}
	}
	return nil
}

// Outcome classifies err for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case hydroerr.IsInput(err):
		return "input"
	case hydroerr.IsLookup(err):
		return "lookup"
	case hydroerr.IsConvergence(err):
		return "convergence"
	case hydroerr.IsDegenerate(err):
		return "degenerate"
	}
	return "error"
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
