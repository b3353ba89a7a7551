package frequency

import (
	"fmt"
	"math"
	"strings"

	"github.com/chrissnell/designflood/pkg/hydroerr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"
)

// Method identifies how a parameter set was estimated.
type Method string

const (
	// MethodMoment uses the moment estimate directly.
	MethodMoment Method = "moment"
	// MethodFit1 fits by least squares of the discharge deviations.
	MethodFit1 Method = "fit1"
	// MethodFit2 fits by least sum of absolute deviations.
	MethodFit2 Method = "fit2"
	// MethodFit3 fits by least squares of the relative deviations.
	MethodFit3 Method = "fit3"
	// MethodManual is a parameter set injected by the caller.
	MethodManual Method = "manual"
)

// AllMethods lists the estimation methods run for "all".
var AllMethods = []Method{MethodMoment, MethodFit1, MethodFit2, MethodFit3}

// ParseMethods converts method names to Methods. "all" expands to AllMethods;
// "manual" cannot be requested since it has no estimator.
func ParseMethods(names ...string) ([]Method, error) {
	var methods []Method
	seen := make(map[Method]bool)
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "all" {
			for _, m := range AllMethods {
				if !seen[m] {
					seen[m] = true
					methods = append(methods, m)
				}
			}
			continue
		}
		m := Method(name)
		switch m {
		case MethodMoment, MethodFit1, MethodFit2, MethodFit3:
		default:
			return nil, &hydroerr.InputError{Field: "methods", Message: fmt.Sprintf("unknown estimation method %q", name)}
		}
		if !seen[m] {
			seen[m] = true
			methods = append(methods, m)
		}
	}
	if len(methods) == 0 {
		return nil, &hydroerr.InputError{Field: "methods", Message: "no estimation method given"}
	}
	return methods, nil
}

// FitResult is the outcome of one estimation method.
type FitResult struct {
	Method     Method     `json:"method"`
	Parameters Parameters `json:"parameters"`
	// FellBack is set when curve fitting did not converge and the moment
	// estimate was used instead.
	FellBack bool `json:"fell_back,omitempty"`
}

// DesignValue is one row of a design table.
type DesignValue struct {
	P  float64 `json:"p"`
	Kp float64 `json:"kp"`
	Q  float64 `json:"q"`
}

// FitOptions controls the estimation.
type FitOptions struct {
	Methods []Method
	// FitMean lets the optimizer move the mean. When false the mean stays at
	// the moment estimate and only Cv and Cs are fitted.
	FitMean bool
	// Probabilities is the grid for design tables; DefaultProbabilities when empty.
	Probabilities []float64
	// MaxIterations bounds the optimizer; 5000 when zero.
	MaxIterations int
}

// Fitter holds the parameter sets estimated for a flood series by each
// requested method, and one active set used for design values.
type Fitter struct {
	series  *Series
	opts    FitOptions
	moment  Parameters
	results map[Method]FitResult
	order   []Method
	active  Method
	logger  *zap.SugaredLogger
}

// NewFitter estimates parameters for series with every method in
// opts.Methods. A fitting method that fails to converge falls back to the
// moment estimate; the call only fails if the moment estimate itself cannot
// be computed.
func NewFitter(series *Series, opts FitOptions, logger *zap.SugaredLogger) (*Fitter, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if len(opts.Methods) == 0 {
		opts.Methods = []Method{MethodMoment}
	}
	if len(opts.Probabilities) == 0 {
		opts.Probabilities = DefaultProbabilities
	}
	for _, p := range opts.Probabilities {
		if err := CheckFrequency(p); err != nil {
			return nil, err
		}
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 5000
	}

	moment, err := series.Moments()
	if err != nil {
		return nil, fmt.Errorf("moment estimate: %w", err)
	}
	if err := moment.Validate(); err != nil {
		return nil, fmt.Errorf("moment estimate: %w", err)
	}

	f := &Fitter{
		series:  series,
		opts:    opts,
		moment:  moment,
		results: make(map[Method]FitResult, len(opts.Methods)),
		logger:  logger,
	}

	ps := series.frequencies()
	qs := series.discharges()

	for _, m := range opts.Methods {
		if _, done := f.results[m]; done {
			continue
		}
		f.order = append(f.order, m)

		if m == MethodMoment {
			f.results[m] = FitResult{Method: m, Parameters: moment}
			continue
		}

		params, ok := fitCurve(ps, qs, moment, m, opts.FitMean, opts.MaxIterations)
		if !ok {
			logger.Warnf("%s curve fitting did not converge, using moment estimate cv=%.4f cs=%.4f mean=%.3f",
				m, moment.Cv, moment.Cs, moment.Mean)
			f.results[m] = FitResult{Method: m, Parameters: moment, FellBack: true}
			continue
		}
		logger.Debugf("%s fitted cv=%.4f cs=%.4f mean=%.3f", m, params.Cv, params.Cs, params.Mean)
		f.results[m] = FitResult{Method: m, Parameters: params}
	}

	f.active = f.order[0]
	return f, nil
}

// Series returns the flood series the fitter was built from.
func (f *Fitter) Series() *Series { return f.series }

// Moment returns the moment estimate.
func (f *Fitter) Moment() Parameters { return f.moment }

// Methods returns the estimated methods in request order, followed by
// "manual" when a manual set has been injected.
func (f *Fitter) Methods() []Method {
	return append([]Method(nil), f.order...)
}

// Get returns the result for one method.
func (f *Fitter) Get(m Method) (FitResult, bool) {
	r, ok := f.results[m]
	return r, ok
}

// Results returns a copy of all results keyed by method.
func (f *Fitter) Results() map[Method]FitResult {
	out := make(map[Method]FitResult, len(f.results))
	for k, v := range f.results {
		out[k] = v
	}
	return out
}

// Active returns the parameter set currently designated for design values.
func (f *Fitter) Active() FitResult {
	return f.results[f.active]
}

// SetActive designates an already estimated method as active.
func (f *Fitter) SetActive(m Method) error {
	if _, ok := f.results[m]; !ok {
		return &hydroerr.InputError{Field: "method", Message: fmt.Sprintf("method %q was not estimated", m)}
	}
	f.active = m
	return nil
}

// SetManual injects a parameter set as the "manual" pseudo-method, e.g. after
// adjusting a fitted curve by eye.
func (f *Fitter) SetManual(p Parameters, activate bool) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, ok := f.results[MethodManual]; !ok {
		f.order = append(f.order, MethodManual)
	}
	f.results[MethodManual] = FitResult{Method: MethodManual, Parameters: p}
	if activate {
		f.active = MethodManual
	}
	return nil
}

// Result returns the design table [p, Kp, Q] of one method over the
// probability grid.
func (f *Fitter) Result(m Method) ([]DesignValue, error) {
	r, ok := f.results[m]
	if !ok {
		return nil, &hydroerr.InputError{Field: "method", Message: fmt.Sprintf("method %q was not estimated", m)}
	}
	d, err := NewDistribution(r.Parameters.Cv, r.Parameters.Cs, r.Parameters.Mean)
	if err != nil {
		return nil, err
	}

	table := make([]DesignValue, len(f.opts.Probabilities))
	for i, p := range f.opts.Probabilities {
		q := d.Quantile(p)
		table[i] = DesignValue{P: p, Kp: q / r.Parameters.Mean, Q: q}
	}
	return table, nil
}

// fitPenalty is returned by the objective outside the valid parameter space.
const fitPenalty = 1e300

// fitCurve adjusts the moment estimate so the fitted quantiles match the
// observed discharges at their empirical frequencies, minimising the sum of
// squared residuals for the chosen criterion. It reports false when the
// optimizer does not converge to a valid parameter set.
func fitCurve(ps, qs []float64, initial Parameters, method Method, fitMean bool, maxIter int) (Parameters, bool) {
	if method == MethodFit3 {
		for _, q := range qs {
			if q == 0 {
				return Parameters{}, false
			}
		}
	}

	unpack := func(x []float64) Parameters {
		p := Parameters{Cv: x[0], Cs: x[1], Mean: initial.Mean}
		if fitMean {
			p.Mean = x[2]
		}
		return p
	}

	objective := func(x []float64) float64 {
		p := unpack(x)
		if !(p.Cv > 0) || math.Abs(p.Cs) < 1e-9 || !(p.Mean > 0) {
			return fitPenalty
		}
		d, err := NewDistribution(p.Cv, p.Cs, p.Mean)
		if err != nil {
			return fitPenalty
		}
		var sum float64
		for i, prob := range ps {
			fitted := d.Quantile(prob)
			if math.IsNaN(fitted) || math.IsInf(fitted, 0) {
				return fitPenalty
			}
			r := residual(method, fitted, qs[i])
			sum += r * r
		}
		return sum
	}

	x0 := []float64{initial.Cv, initial.Cs}
	if fitMean {
		x0 = append(x0, initial.Mean)
	}

	settings := &optimize.Settings{
		MajorIterations: maxIter,
		FuncEvaluations: 10 * maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 200,
		},
	}

	result, err := optimize.Minimize(optimize.Problem{Func: objective}, x0, settings, &optimize.NelderMead{})
	if err != nil || result == nil {
		return Parameters{}, false
	}
	switch result.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge,
		optimize.FunctionThreshold, optimize.StepConvergence, optimize.GradientThreshold:
	default:
		return Parameters{}, false
	}
	if result.F >= fitPenalty || math.IsNaN(result.F) {
		return Parameters{}, false
	}

	p := unpack(result.X)
	if p.Validate() != nil {
		return Parameters{}, false
	}
	return p, true
}

// residual implements the three fitting criteria.
func residual(method Method, fitted, observed float64) float64 {
	switch method {
	case MethodFit2:
		return math.Sqrt(math.Abs(fitted - observed))
	case MethodFit3:
		return (fitted - observed) / observed
	default:
		return fitted - observed
	}
}
