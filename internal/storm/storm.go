// Package storm derives the design storm for a watershed: design depths per
// duration, areal reduction, decay exponents, the 24-hour temporal pattern
// and the net rain series.
package storm

import (
	"fmt"
	"math"

	"github.com/chrissnell/designflood/internal/atlas"
	"github.com/chrissnell/designflood/pkg/frequency"
	"github.com/chrissnell/designflood/pkg/hydroerr"
)

// DefaultRatio is the Cs/Cv ratio of storm rainfall.
const DefaultRatio = 3.5

// anchorTolerance is how close a duration must be to an anchor to return the
// anchor depth exactly.
const anchorTolerance = 1e-8

// ExponentMode selects where the decay exponents come from.
type ExponentMode string

const (
	// Derived computes n1..n3 from the design depths and reduction factors.
	Derived ExponentMode = "derived"
	// Atlas uses the regional exponents read from the atlas.
	Atlas ExponentMode = "atlas"
)

// ParseExponentMode accepts "", "derived" and "atlas".
func ParseExponentMode(s string) (ExponentMode, error) {
	switch ExponentMode(s) {
	case "", Derived:
		return Derived, nil
	case Atlas:
		return Atlas, nil
	}
	return "", &hydroerr.InputError{Field: "exponent_mode", Message: fmt.Sprintf("unknown exponent mode %q", s)}
}

// Params are the inputs of a design storm.
type Params struct {
	// Statistics holds the atlas point rainfall statistics per duration.
	Statistics map[atlas.Duration]atlas.Statistics
	// Exponents are the atlas exponents, used in Atlas mode.
	Exponents atlas.Exponents
	Region    atlas.RegionCode
	Runoff    atlas.RunoffCode
	// Area is the watershed area F in km².
	Area float64
	// P is the design exceedance frequency.
	P     float64
	Ratio float64
	Mode  ExponentMode

	// Optional overrides.
	Mu    *float64
	Imax  *float64
	Pa    *float64
	Alpha map[atlas.Duration]float64
}

// HourlyDepth is the rain depth in mm falling in hour Hour (1..24).
type HourlyDepth struct {
	Hour  int     `json:"hour"`
	Depth float64 `json:"depth"`
}

// Storm is a computed design storm. It is immutable.
type Storm struct {
	p      float64
	ratio  float64
	mode   ExponentMode
	point  map[atlas.Duration]float64
	alpha  map[atlas.Duration]float64
	areal  map[atlas.Duration]float64
	n      atlas.Exponents
	imax   float64
	pa     float64
	r      float64
	mu     float64
	muSet  bool
	runoff atlas.RunoffCode

	pattern []HourlyDepth
	netRain []HourlyDepth
}

// New computes the design storm.
func New(params Params, reducer atlas.AreaReducer, runoff atlas.RunoffCurve) (*Storm, error) {
	if err := frequency.CheckFrequency(params.P); err != nil {
		return nil, err
	}
	if !(params.Area > 0) {
		return nil, hydroerr.Input("F", params.Area, "area must be positive")
	}
	if params.Ratio == 0 {
		params.Ratio = DefaultRatio
	}
	if !(params.Ratio > 0) {
		return nil, hydroerr.Input("ratio", params.Ratio, "Cs/Cv ratio must be positive")
	}
	mode, err := ParseExponentMode(string(params.Mode))
	if err != nil {
		return nil, err
	}

	s := &Storm{
		p:      params.P,
		ratio:  params.Ratio,
		mode:   mode,
		point:  make(map[atlas.Duration]float64, len(atlas.Durations)),
		alpha:  make(map[atlas.Duration]float64, len(atlas.Durations)),
		areal:  make(map[atlas.Duration]float64, len(atlas.Durations)),
		runoff: params.Runoff,
	}

	for _, d := range atlas.Durations {
		st, ok := params.Statistics[d]
		if !ok {
			return nil, &hydroerr.InputError{Field: "statistics", Message: fmt.Sprintf("no %s rainfall statistics", d)}
		}
		if !(st.Mean > 0) {
			return nil, hydroerr.Input("mean_"+string(d), st.Mean, "mean rainfall must be positive")
		}
		dist, err := frequency.NewDistribution(st.Cv, params.Ratio*st.Cv, 1)
		if err != nil {
			return nil, fmt.Errorf("%s rainfall distribution: %w", d, err)
		}
		s.point[d] = dist.Modulus(params.P) * st.Mean

		alpha, ok := params.Alpha[d]
		if !ok {
			alpha, err = reducer.ArealReduction(params.Region, d, params.Area)
			if err != nil {
				return nil, fmt.Errorf("%s areal reduction: %w", d, err)
			}
		}
		if !(alpha > 0 && alpha <= 1) {
			return nil, hydroerr.Input("alpha_"+string(d), alpha, "areal reduction factor must be in (0, 1]")
		}
		s.alpha[d] = alpha
		s.areal[d] = s.point[d] * alpha
	}

	switch mode {
	case Atlas:
		s.n = params.Exponents
	default:
		s.n = atlas.Exponents{
			N1: 1 - 1.285*math.Log10(s.areal[atlas.Hour1]/s.areal[atlas.Min10]),
			N2: 1 - 1.285*math.Log10(s.areal[atlas.Hour6]/s.areal[atlas.Hour1]),
			N3: 1 - 1.661*math.Log10(s.areal[atlas.Hour24]/s.areal[atlas.Hour6]),
		}
	}

	if params.Imax != nil {
		s.imax = *params.Imax
	} else if s.imax, err = runoff.MaxInitialLoss(params.Runoff); err != nil {
		return nil, err
	}
	switch {
	case params.Pa != nil:
		s.pa = *params.Pa
	case params.Imax != nil:
		s.pa = atlas.AntecedentMoisture(s.imax, params.P)
	default:
		if s.pa, err = runoff.AntecedentLoss(params.Runoff, params.P); err != nil {
			return nil, err
		}
	}
	if s.imax < 0 || s.pa < 0 {
		return nil, hydroerr.Input("Pa", s.pa, "losses must not be negative")
	}

	if s.r, err = runoff.RunoffDepth(params.Runoff, s.areal[atlas.Hour24]+s.pa); err != nil {
		return nil, fmt.Errorf("runoff depth: %w", err)
	}

	s.mu = (s.areal[atlas.Hour24] - s.r) / 24
	if params.Mu != nil {
		if *params.Mu < 0 {
			return nil, hydroerr.Input("mu", *params.Mu, "infiltration rate must not be negative")
		}
		s.mu, s.muSet = *params.Mu, true
	} else if s.mu < 0 {
		return nil, hydroerr.Degenerate("net rain", "runoff depth %.3f exceeds the 24h areal depth %.3f", s.r, s.areal[atlas.Hour24])
	}

	if s.pattern, err = s.temporalPattern(); err != nil {
		return nil, err
	}
	if s.netRain, err = NetRain(s.pattern, s.mu, s.r); err != nil {
		return nil, err
	}
	return s, nil
}

// P returns the design frequency.
func (s *Storm) P() float64 { return s.p }

// Exponents returns n1, n2 and n3.
func (s *Storm) Exponents() atlas.Exponents { return s.n }

// Mode returns how the exponents were obtained.
func (s *Storm) Mode() ExponentMode { return s.mode }

// PointAnchor returns the design point depth of an anchor duration.
func (s *Storm) PointAnchor(d atlas.Duration) float64 { return s.point[d] }

// ArealAnchor returns the design areal depth of an anchor duration.
func (s *Storm) ArealAnchor(d atlas.Duration) float64 { return s.areal[d] }

// Alpha returns the areal reduction factor of an anchor duration.
func (s *Storm) Alpha(d atlas.Duration) float64 { return s.alpha[d] }

// S is the design 1-hour areal rainfall, the storm intensity the peak flow
// solver works with.
func (s *Storm) S() float64 { return s.areal[atlas.Hour1] }

// MaxInitialLoss returns Imax.
func (s *Storm) MaxInitialLoss() float64 { return s.imax }

// AntecedentLoss returns Pa.
func (s *Storm) AntecedentLoss() float64 { return s.pa }

// RunoffDepth returns the 24h runoff depth R in mm.
func (s *Storm) RunoffDepth() float64 { return s.r }

// Mu returns the uniform loss rate used for net rain: the caller's value if
// one was given, else (H24 - R)/24.
func (s *Storm) Mu() float64 { return s.mu }

// MuEstimated reports whether Mu was estimated rather than supplied.
func (s *Storm) MuEstimated() bool { return !s.muSet }

// TemporalPattern returns the hourly areal rainfall.
func (s *Storm) TemporalPattern() []HourlyDepth {
	return append([]HourlyDepth(nil), s.pattern...)
}

// NetRain returns the hourly net rain.
func (s *Storm) NetRain() []HourlyDepth {
	return append([]HourlyDepth(nil), s.netRain...)
}

// PointDepth is the design point rainfall for a duration of t hours.
func (s *Storm) PointDepth(t float64) (float64, error) {
	return s.depth(s.point, t)
}

// ArealDepth is the design areal rainfall for a duration of t hours.
func (s *Storm) ArealDepth(t float64) (float64, error) {
	return s.depth(s.areal, t)
}

// depth returns the anchor value at the four anchor durations and a power
// law in the band's exponent elsewhere. The 6-24h band hangs from the 24h
// anchor, the others from the 1h anchor.
func (s *Storm) depth(anchors map[atlas.Duration]float64, t float64) (float64, error) {
	for _, d := range atlas.Durations {
		if math.Abs(t-d.Hours()) < anchorTolerance {
			return anchors[d], nil
		}
	}
	h1, h24 := anchors[atlas.Hour1], anchors[atlas.Hour24]
	switch {
	case t > 0 && t < 1:
		return h1 * math.Pow(t, 1-s.n.N1), nil
	case t > 1 && t < 6:
		return h1 * math.Pow(t, 1-s.n.N2), nil
	case t > 6 && t < 24:
		return h24 * math.Pow(24, s.n.N3-1) * math.Pow(t, 1-s.n.N3), nil
	}
	return 0, hydroerr.Input("t", t, "storm duration must be in (0, 24] hours")
}

// Summary returns the storm's scalar results for reporting and logging.
func (s *Storm) Summary() map[string]any {
	out := map[string]any{
		"p":             s.p,
		"ratio":         s.ratio,
		"exponent_mode": string(s.mode),
		"n1":            s.n.N1,
		"n2":            s.n.N2,
		"n3":            s.n.N3,
		"imax":          s.imax,
		"pa":            s.pa,
		"ppa":           s.areal[atlas.Hour24] + s.pa,
		"r":             s.r,
		"mu":            s.mu,
		"mu_estimated":  !s.muSet,
		"runoff":        string(s.runoff),
	}
	for _, d := range atlas.Durations {
		out["point_"+string(d)] = s.point[d]
		out["alpha_"+string(d)] = s.alpha[d]
		out["areal_"+string(d)] = s.areal[d]
	}
	return out
}
