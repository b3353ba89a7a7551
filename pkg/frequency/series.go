package frequency

import (
	"math"
	"sort"

	"github.com/chrissnell/designflood/pkg/hydroerr"
	"gonum.org/v1/gonum/stat"
)

// FloodRecord is one annual peak discharge.
type FloodRecord struct {
	Year      int     `json:"year"`
	Discharge float64 `json:"discharge"`
}

// EmpiricalPoint is a flood with its plotting-position frequency.
type EmpiricalPoint struct {
	Year          int     `json:"year"`
	Discharge     float64 `json:"discharge"`
	Frequency     float64 `json:"frequency"`
	Extraordinary bool    `json:"extraordinary,omitempty"`
}

// Series is a flood sample ready for parameter estimation. It is built by
// ContinuousSeries or ExtendedSeries and never modified afterwards.
type Series struct {
	points  []EmpiricalPoint
	weights []float64
	// N, a, l, n as in the extended-series formulas; for a continuous
	// series N == n and a == l == 0.
	N, A, L, Count int
	extended       bool
}

func sortDescending(floods []FloodRecord) []FloodRecord {
	sorted := append([]FloodRecord(nil), floods...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Discharge > sorted[j].Discharge
	})
	return sorted
}

func validateFloods(field string, floods []FloodRecord) error {
	for _, f := range floods {
		if f.Discharge < 0 || math.IsNaN(f.Discharge) || math.IsInf(f.Discharge, 0) {
			return hydroerr.Input(field, f.Discharge, "discharge for year %d must be finite and non-negative", f.Year)
		}
	}
	return nil
}

// ContinuousSeries ranks floods in descending order and assigns p_i = i/(n+1).
func ContinuousSeries(floods []FloodRecord) (*Series, error) {
	n := len(floods)
	if n < 3 {
		return nil, hydroerr.Input("floods", float64(n), "at least 3 records are required")
	}
	if err := validateFloods("floods", floods); err != nil {
		return nil, err
	}

	sorted := sortDescending(floods)
	points := make([]EmpiricalPoint, n)
	weights := make([]float64, n)
	for i, f := range sorted {
		points[i] = EmpiricalPoint{
			Year:      f.Year,
			Discharge: f.Discharge,
			Frequency: float64(i+1) / float64(n+1),
		}
		weights[i] = 1
	}

	return &Series{points: points, weights: weights, N: n, Count: n}, nil
}

// ExtendedSeries builds a discontinuous series from a continuous record of n
// floods, a survey of historical extraordinary floods, the return period N the
// survey represents and the number l of extraordinary floods that are already
// part of the continuous record.
//
// The a = len(survey)+l extraordinary floods take p_i = i/(N+1) in the pooled
// ranking. The remaining n-l floods, ranked l+1..n within the continuous
// record, take p_i = a/(N+1) + (1-a/(N+1))·(i-l)/(n-l+1).
func ExtendedSeries(floods, survey []FloodRecord, bigN, l int) (*Series, error) {
	n := len(floods)
	a := len(survey) + l

	switch {
	case l < 0 || l > n:
		return nil, hydroerr.Input("l", float64(l), "must be between 0 and the continuous record length %d", n)
	case n-l < 2:
		return nil, hydroerr.Input("l", float64(l), "at least 2 ordinary floods must remain in the continuous record")
	case bigN < n:
		return nil, hydroerr.Input("N", float64(bigN), "return period must cover the continuous record length %d", n)
	case a < 1:
		return nil, hydroerr.Input("survey", 0, "an extended series needs at least one extraordinary flood")
	case a >= bigN:
		return nil, hydroerr.Input("N", float64(bigN), "return period must exceed the %d extraordinary floods", a)
	}
	if err := validateFloods("floods", floods); err != nil {
		return nil, err
	}
	if err := validateFloods("survey", survey); err != nil {
		return nil, err
	}

	sortedFloods := sortDescending(floods)
	extra := sortDescending(append(append([]FloodRecord(nil), survey...), sortedFloods[:l]...))
	ordinary := sortedFloods[l:]

	points := make([]EmpiricalPoint, 0, a+len(ordinary))
	weights := make([]float64, 0, a+len(ordinary))

	for i, f := range extra {
		points = append(points, EmpiricalPoint{
			Year:          f.Year,
			Discharge:     f.Discharge,
			Frequency:     float64(i+1) / float64(bigN+1),
			Extraordinary: true,
		})
		weights = append(weights, 1)
	}

	head := float64(a) / float64(bigN+1)
	k := float64(bigN-a) / float64(n-l)
	for j, f := range ordinary {
		rank := l + j + 1
		points = append(points, EmpiricalPoint{
			Year:      f.Year,
			Discharge: f.Discharge,
			Frequency: head + (1-head)*float64(rank-l)/float64(n-l+1),
		})
		weights = append(weights, k)
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Frequency < points[j].Frequency
	})
	// weights are 1 for the first a points and k for the rest in both orders,
	// since extraordinary frequencies never exceed a/(N+1).

	return &Series{points: points, weights: weights, N: bigN, A: a, L: l, Count: n, extended: true}, nil
}

// Points returns a copy of the empirical frequencies in ascending frequency order.
func (s *Series) Points() []EmpiricalPoint {
	return append([]EmpiricalPoint(nil), s.points...)
}

func (s *Series) Extended() bool { return s.extended }

func (s *Series) discharges() []float64 {
	qs := make([]float64, len(s.points))
	for i, p := range s.points {
		qs[i] = p.Discharge
	}
	return qs
}

func (s *Series) frequencies() []float64 {
	ps := make([]float64, len(s.points))
	for i, p := range s.points {
		ps[i] = p.Frequency
	}
	return ps
}

// Moments estimates Cv, Cs and the mean by the method of moments. Extended
// series weight ordinary floods by (N-a)/(n-l) so the total weight is N.
func (s *Series) Moments() (Parameters, error) {
	qs := s.discharges()
	mean, sd := stat.MeanStdDev(qs, s.weights)
	if !(mean > 0) {
		return Parameters{}, hydroerr.Input("mean", mean, "flood series mean must be positive")
	}
	cv := sd / mean
	if !(cv > 0) {
		return Parameters{}, hydroerr.Input("cv", cv, "flood series has no variability")
	}

	var third float64
	for i, q := range qs {
		d := q - mean
		third += s.weights[i] * d * d * d
	}
	size := float64(s.N)
	cs := size * third / ((size - 1) * (size - 2) * math.Pow(mean, 3) * math.Pow(cv, 3))

	return Parameters{Cv: cv, Cs: cs, Mean: mean}, nil
}
