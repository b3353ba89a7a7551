package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/chrissnell/designflood/internal/observability"
	"github.com/chrissnell/designflood/pkg/frequency"
	"github.com/chrissnell/designflood/pkg/hydroerr"
)

// FrequencyRequest is a flood frequency analysis. The series is extended with
// historical floods when Survey is non-empty or N is set.
type FrequencyRequest struct {
	Floods []frequency.FloodRecord
	Survey []frequency.FloodRecord
	// N is the survey period in years and L the number of continuous floods
	// treated as extraordinary.
	N, L    int
	Methods []frequency.Method
	// FitMean is applied as given; callers resolve their own default.
	FitMean       bool
	Manual        *frequency.Parameters
	Active        frequency.Method
	Probabilities []float64
}

// MethodTable is the parameter set and design table of one method.
type MethodTable struct {
	frequency.FitResult
	Table []frequency.DesignValue `json:"table"`
}

// FrequencyResult is a finished frequency analysis.
type FrequencyResult struct {
	Points   []frequency.EmpiricalPoint `json:"points"`
	Extended bool                       `json:"extended"`
	Moment   frequency.Parameters       `json:"moment"`
	Methods  []MethodTable              `json:"methods"`
	Active   frequency.Method           `json:"active"`
}

// FrequencyAnalyzer fits Pearson-III curves to flood series.
type FrequencyAnalyzer struct {
	metrics *observability.Metrics
	logger  *zap.SugaredLogger
}

// NewFrequencyAnalyzer returns an analyzer. metrics must not be nil.
func NewFrequencyAnalyzer(metrics *observability.Metrics, logger *zap.SugaredLogger) *FrequencyAnalyzer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FrequencyAnalyzer{metrics: metrics, logger: logger}
}

// Analyze estimates parameters with every requested method and builds their
// design tables.
func (a *FrequencyAnalyzer) Analyze(ctx context.Context, req FrequencyRequest) (*FrequencyResult, error) {
	res, err := a.analyze(ctx, req)
	a.metrics.Runs.WithLabelValues("frequency", Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (a *FrequencyAnalyzer) analyze(ctx context.Context, req FrequencyRequest) (*FrequencyResult, error) {
	if err := checkContext(ctx, "fit"); err != nil {
		return nil, err
	}

	var (
		series *frequency.Series
		err    error
	)
	if len(req.Survey) > 0 || req.N > 0 {
		series, err = frequency.ExtendedSeries(req.Floods, req.Survey, req.N, req.L)
	} else {
		series, err = frequency.ContinuousSeries(req.Floods)
	}
	if err != nil {
		return nil, err
	}

	start := observability.Clock().Now()
	fitter, err := frequency.NewFitter(series, frequency.FitOptions{
		Methods:       req.Methods,
		FitMean:       req.FitMean,
		Probabilities: req.Probabilities,
	}, a.logger)
	a.metrics.StageDuration.WithLabelValues("fit").Observe(observability.Clock().Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if req.Manual != nil {
		if err := fitter.SetManual(*req.Manual, req.Active == "" || req.Active == frequency.MethodManual); err != nil {
			return nil, err
		}
	}
	if req.Active != "" {
		if err := fitter.SetActive(req.Active); err != nil {
			return nil, err
		}
	}

	res := &FrequencyResult{
		Points:   series.Points(),
		Extended: series.Extended(),
		Moment:   fitter.Moment(),
		Active:   fitter.Active().Method,
	}
	for _, m := range fitter.Methods() {
		fit, _ := fitter.Get(m)
		if fit.FellBack {
			a.metrics.FitFallbacks.WithLabelValues(string(m)).Inc()
		}
		table, err := fitter.Result(m)
		if err != nil {
			return nil, err
		}
		res.Methods = append(res.Methods, MethodTable{FitResult: fit, Table: table})
	}
	if len(res.Methods) == 0 {
		return nil, hydroerr.Degenerate("fit", "no parameter set was estimated")
	}
	a.logger.Debugf("frequency analysis of %d floods, active %s", len(res.Points), res.Active)
	return res, nil
}
