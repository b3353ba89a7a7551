// Package frequency implements Pearson Type-III flood frequency analysis:
// the distribution itself, empirical frequencies for continuous and
// historically extended flood series, moment estimation and curve fitting.
package frequency

import (
	"math"

	"github.com/chrissnell/designflood/pkg/hydroerr"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultProbabilities is the exceedance probability grid used for design
// tables, from 0.01% to 99.99%.
var DefaultProbabilities = []float64{
	0.0001, 0.0002, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.3, 0.4,
	0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.98, 0.99, 0.997, 0.999, 0.9997, 0.9999,
}

// Parameters holds the three statistics of a Pearson-III curve.
type Parameters struct {
	Cv   float64 `json:"cv" yaml:"cv"`
	Cs   float64 `json:"cs" yaml:"cs"`
	Mean float64 `json:"mean" yaml:"mean"`
}

// Validate checks cv > 0, cs != 0 and mean > 0.
func (p Parameters) Validate() error {
	switch {
	case !(p.Cv > 0):
		return hydroerr.Input("cv", p.Cv, "must be positive")
	case p.Cs == 0 || math.IsNaN(p.Cs):
		return hydroerr.Input("cs", p.Cs, "must be non-zero")
	case !(p.Mean > 0):
		return hydroerr.Input("mean", p.Mean, "must be positive")
	}
	return nil
}

// Distribution is a Pearson-III curve expressed as a three-parameter gamma
// distribution: shape = 4/cs², scale = mean·cv·cs/2, location = mean·(1-2cv/cs).
// A negative cs gives a negative scale, i.e. a gamma mirrored about its
// location.
type Distribution struct {
	params   Parameters
	shape    float64
	scale    float64
	location float64
}

// NewDistribution builds the curve for the given statistics. Pass mean=1 to
// work with modulus coefficients directly.
func NewDistribution(cv, cs, mean float64) (*Distribution, error) {
	p := Parameters{Cv: cv, Cs: cs, Mean: mean}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Distribution{
		params:   p,
		shape:    4 / (cs * cs),
		scale:    mean * cv * cs / 2,
		location: mean * (1 - 2*cv/cs),
	}, nil
}

func (d *Distribution) Parameters() Parameters { return d.params }

// Shape, Scale and Location expose the gamma reparameterisation.
func (d *Distribution) Shape() float64    { return d.shape }
func (d *Distribution) Scale() float64    { return d.scale }
func (d *Distribution) Location() float64 { return d.location }

// Quantile returns the discharge exceeded with probability p (the inverse
// survival function). It returns NaN when p is outside (0,1); use
// QuantileChecked to get an InputError instead.
func (d *Distribution) Quantile(p float64) float64 {
	if !(p > 0 && p < 1) {
		return math.NaN()
	}
	if d.scale > 0 {
		return d.location + d.scale*mathext.GammaIncRegCompInv(d.shape, p)
	}
	// Mirrored gamma: X = loc + scale·G with scale < 0, so P(X > x) = P(G < (x-loc)/scale).
	return d.location + d.scale*mathext.GammaIncRegInv(d.shape, p)
}

// QuantileChecked is Quantile with the frequency validated.
func (d *Distribution) QuantileChecked(p float64) (float64, error) {
	if err := CheckFrequency(p); err != nil {
		return 0, err
	}
	return d.Quantile(p), nil
}

// Modulus returns the modulus coefficient Kp = Quantile(p)/mean.
func (d *Distribution) Modulus(p float64) float64 {
	return d.Quantile(p) / d.params.Mean
}

// Exceedance returns the probability that discharge q is exceeded.
func (d *Distribution) Exceedance(q float64) float64 {
	g := distuv.Gamma{Alpha: d.shape, Beta: 1}
	z := (q - d.location) / math.Abs(d.scale)
	if d.scale > 0 {
		if z <= 0 {
			return 1
		}
		return g.Survival(z)
	}
	// Mirrored: P(X > q) = P(G < (loc-q)/|scale|)
	z = -z
	if z <= 0 {
		return 0
	}
	return g.CDF(z)
}

// ReturnPeriod returns 1/Exceedance(q) in years, +Inf when q is never exceeded.
func (d *Distribution) ReturnPeriod(q float64) float64 {
	p := d.Exceedance(q)
	if p == 0 {
		return math.Inf(1)
	}
	return 1 / p
}

// CheckFrequency validates an exceedance frequency, which must lie in (0,1).
func CheckFrequency(p float64) error {
	if !(p > 0 && p < 1) {
		return hydroerr.Input("p", p, "frequency must be in (0,1)")
	}
	return nil
}
