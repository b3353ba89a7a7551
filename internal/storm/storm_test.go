package storm

import (
	"math"
	"testing"

	"github.com/chrissnell/designflood/internal/atlas"
	"github.com/chrissnell/designflood/pkg/frequency"
	"github.com/chrissnell/designflood/pkg/hydroerr"
)

type fixedReducer map[atlas.Duration]float64

func (f fixedReducer) ArealReduction(_ atlas.RegionCode, d atlas.Duration, _ float64) (float64, error) {
	return f[d], nil
}

// linearRunoff is R = 0.9·(P+Pa) - 80 with Imax 55.
type linearRunoff struct{}

func (linearRunoff) RunoffDepth(_ atlas.RunoffCode, ppa float64) (float64, error) {
	return math.Max(0, 0.9*ppa-80), nil
}

func (linearRunoff) MaxInitialLoss(atlas.RunoffCode) (float64, error) { return 55, nil }

func (linearRunoff) AntecedentLoss(_ atlas.RunoffCode, p float64) (float64, error) {
	return atlas.AntecedentMoisture(55, p), nil
}

var testStatistics = map[atlas.Duration]atlas.Statistics{
	atlas.Min10:  {Mean: 15, Cv: 0.4},
	atlas.Hour1:  {Mean: 40, Cv: 0.5},
	atlas.Hour6:  {Mean: 68, Cv: 0.55},
	atlas.Hour24: {Mean: 95, Cv: 0.58},
}

var testAlpha = fixedReducer{
	atlas.Min10:  0.90,
	atlas.Hour1:  0.93,
	atlas.Hour6:  0.96,
	atlas.Hour24: 0.98,
}

func testParams() Params {
	return Params{
		Statistics: testStatistics,
		Exponents:  atlas.Exponents{N1: 0.5, N2: 0.7, N3: 0.8},
		Region:     5,
		Runoff:     "hill-5",
		Area:       72,
		P:          0.01,
	}
}

func newTestStorm(t *testing.T, p Params) *Storm {
	t.Helper()
	s, err := New(p, testAlpha, linearRunoff{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestAnchorDepthsAreExact(t *testing.T) {
	s := newTestStorm(t, testParams())

	for _, d := range atlas.Durations {
		st := testStatistics[d]
		dist, err := frequency.NewDistribution(st.Cv, DefaultRatio*st.Cv, 1)
		if err != nil {
			t.Fatal(err)
		}
		expected := dist.Modulus(0.01) * st.Mean

		got, err := s.PointDepth(d.Hours())
		if err != nil {
			t.Fatal(err)
		}
		if got != expected {
			t.Errorf("%s point depth = %v, expected exactly %v", d, got, expected)
		}

		areal, err := s.ArealDepth(d.Hours())
		if err != nil {
			t.Fatal(err)
		}
		if areal != expected*testAlpha[d] {
			t.Errorf("%s areal depth = %v, expected exactly %v", d, areal, expected*testAlpha[d])
		}
	}
}

func TestDerivedExponents(t *testing.T) {
	s := newTestStorm(t, testParams())

	h := func(d atlas.Duration) float64 { return s.ArealAnchor(d) }
	expected := atlas.Exponents{
		N1: 1 - 1.285*math.Log10(h(atlas.Hour1)/h(atlas.Min10)),
		N2: 1 - 1.285*math.Log10(h(atlas.Hour6)/h(atlas.Hour1)),
		N3: 1 - 1.661*math.Log10(h(atlas.Hour24)/h(atlas.Hour6)),
	}
	if got := s.Exponents(); got != expected {
		t.Errorf("exponents = %+v, expected %+v", got, expected)
	}

	// Derived exponents make the areal depth curve continuous at 6h to
	// within the rounding of the 1.285 and 1.661 coefficients.
	h6 := h(atlas.Hour6)
	for _, tt := range []float64{6 - 1e-6, 6 + 1e-6} {
		v, err := s.ArealDepth(tt)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(v-h6)/h6 > 1e-3 {
			t.Errorf("ArealDepth(%v) = %v, expected close to H6 %v", tt, v, h6)
		}
	}
}

func TestAtlasExponents(t *testing.T) {
	p := testParams()
	p.Mode = Atlas
	s := newTestStorm(t, p)
	if got := s.Exponents(); got != p.Exponents {
		t.Errorf("exponents = %+v, expected atlas values %+v", got, p.Exponents)
	}

	h1 := s.ArealAnchor(atlas.Hour1)
	v, err := s.ArealDepth(0.5)
	if err != nil {
		t.Fatal(err)
	}
	if expected := h1 * math.Pow(0.5, 0.5); math.Abs(v-expected) > 1e-12 {
		t.Errorf("ArealDepth(0.5) = %v, expected %v", v, expected)
	}

	h24 := s.ArealAnchor(atlas.Hour24)
	v, err = s.ArealDepth(12)
	if err != nil {
		t.Fatal(err)
	}
	if expected := h24 * math.Pow(24, -0.2) * math.Pow(12, 0.2); math.Abs(v-expected) > 1e-12 {
		t.Errorf("ArealDepth(12) = %v, expected %v", v, expected)
	}
}

func TestDepthOutOfRange(t *testing.T) {
	s := newTestStorm(t, testParams())
	for _, d := range []float64{0, -1, 24.5, math.NaN()} {
		if _, err := s.PointDepth(d); !hydroerr.IsInput(err) {
			t.Errorf("PointDepth(%v): expected InputError, got %v", d, err)
		}
	}
}

func TestTemporalPattern(t *testing.T) {
	s := newTestStorm(t, testParams())
	pattern := s.TemporalPattern()

	if len(pattern) != 24 {
		t.Fatalf("pattern has %d hours, expected 24", len(pattern))
	}

	var sum float64
	peak := 0
	for i, h := range pattern {
		if h.Hour != i+1 {
			t.Errorf("pattern[%d].Hour = %d", i, h.Hour)
		}
		if h.Depth < 0 {
			t.Errorf("hour %d has negative depth %v", h.Hour, h.Depth)
		}
		if h.Depth > pattern[peak].Depth {
			peak = i
		}
		sum += h.Depth
	}

	h24 := s.ArealAnchor(atlas.Hour24)
	if math.Abs(sum-h24) > 1e-9*h24 {
		t.Errorf("pattern sums to %v, expected H24 %v", sum, h24)
	}
	if pattern[peak].Hour != peakHour {
		t.Errorf("heaviest hour is %d, expected %d", pattern[peak].Hour, peakHour)
	}
	if pattern[peakHour-1].Depth != s.ArealAnchor(atlas.Hour1) {
		t.Errorf("hour 15 = %v, expected H1 %v", pattern[peakHour-1].Depth, s.ArealAnchor(atlas.Hour1))
	}
	for hour := 2; hour <= 6; hour++ {
		if pattern[hour-1].Depth != pattern[0].Depth {
			t.Errorf("hour %d = %v, expected the same as hour 1 %v", hour, pattern[hour-1].Depth, pattern[0].Depth)
		}
	}
}

func TestNetRainSumsToRunoff(t *testing.T) {
	s := newTestStorm(t, testParams())

	h24 := s.ArealAnchor(atlas.Hour24)
	pa := s.AntecedentLoss()
	if pa != 55 {
		t.Errorf("Pa = %v, expected Imax 55 for p=0.01", pa)
	}
	expectedR := 0.9*(h24+pa) - 80
	if math.Abs(s.RunoffDepth()-expectedR) > 1e-9 {
		t.Errorf("R = %v, expected %v", s.RunoffDepth(), expectedR)
	}
	if !s.MuEstimated() || math.Abs(s.Mu()-(h24-expectedR)/24) > 1e-12 {
		t.Errorf("mu = %v, expected the estimate %v", s.Mu(), (h24-expectedR)/24)
	}

	var sum float64
	for _, h := range s.NetRain() {
		if h.Depth < 0 {
			t.Errorf("hour %d has negative net rain %v", h.Hour, h.Depth)
		}
		sum += h.Depth
	}
	if math.Abs(sum-s.RunoffDepth()) > 1e-9 {
		t.Errorf("net rain sums to %v, expected R %v", sum, s.RunoffDepth())
	}
}

func TestOverrides(t *testing.T) {
	p := testParams()
	imax := 40.0
	mu := 2.5
	p.P = 0.1
	p.Imax = &imax
	p.Mu = &mu
	p.Alpha = map[atlas.Duration]float64{atlas.Hour24: 1}

	s := newTestStorm(t, p)
	if s.MaxInitialLoss() != 40 {
		t.Errorf("Imax = %v, expected override 40", s.MaxInitialLoss())
	}
	if math.Abs(s.AntecedentLoss()-40.0*2/3) > 1e-12 {
		t.Errorf("Pa = %v, expected two thirds of the overridden Imax", s.AntecedentLoss())
	}
	if s.Mu() != 2.5 || s.MuEstimated() {
		t.Errorf("mu = %v estimated=%v, expected the override", s.Mu(), s.MuEstimated())
	}
	if s.Alpha(atlas.Hour24) != 1 || s.Alpha(atlas.Hour1) != testAlpha[atlas.Hour1] {
		t.Errorf("alpha overrides not applied per duration")
	}
}

func TestNetRainDegenerate(t *testing.T) {
	p := testParams()
	mu := 1000.0
	p.Mu = &mu
	if _, err := New(p, testAlpha, linearRunoff{}); !hydroerr.IsDegenerate(err) {
		t.Errorf("expected NumericDegeneracy when the loss absorbs all rain, got %v", err)
	}

	if _, err := NetRain(nil, 1, 10); !hydroerr.IsDegenerate(err) {
		t.Errorf("expected NumericDegeneracy for an empty pattern, got %v", err)
	}

	net, err := NetRain([]HourlyDepth{{1, 5}, {2, 3}}, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range net {
		if h.Depth != 0 {
			t.Errorf("hour %d = %v, expected 0 when R is 0", h.Hour, h.Depth)
		}
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"p zero", func(p *Params) { p.P = 0 }},
		{"p one", func(p *Params) { p.P = 1 }},
		{"area", func(p *Params) { p.Area = -3 }},
		{"ratio", func(p *Params) { p.Ratio = -1 }},
		{"mode", func(p *Params) { p.Mode = "guess" }},
		{"missing statistics", func(p *Params) {
			p.Statistics = map[atlas.Duration]atlas.Statistics{atlas.Hour1: {Mean: 40, Cv: 0.5}}
		}},
		{"bad cv", func(p *Params) {
			p.Statistics = map[atlas.Duration]atlas.Statistics{
				atlas.Min10: {Mean: 15, Cv: 0}, atlas.Hour1: {Mean: 40, Cv: 0.5},
				atlas.Hour6: {Mean: 68, Cv: 0.55}, atlas.Hour24: {Mean: 95, Cv: 0.58},
			}
		}},
	}
	for _, tt := range tests {
		p := testParams()
		tt.mutate(&p)
		if _, err := New(p, testAlpha, linearRunoff{}); !hydroerr.IsInput(err) {
			t.Errorf("%s: expected InputError, got %v", tt.name, err)
		}
	}
}
