package flood

import (
	"math"
	"testing"

	"github.com/chrissnell/designflood/internal/atlas"
	"github.com/chrissnell/designflood/internal/storm"
	"github.com/chrissnell/designflood/pkg/hydroerr"
)

var sampleExponents = atlas.Exponents{N1: 0.5, N2: 0.7, N3: 0.8}

// sampleInput is a 72 km² hill watershed in region I.
func sampleInput(t *testing.T, s, mu float64) PeakFlowInput {
	t.Helper()
	theta, err := atlas.Theta(72, 18, 0.003)
	if err != nil {
		t.Fatal(err)
	}
	return PeakFlowInput{
		F: 72, L: 18, J: 0.003,
		S:         s,
		Exponents: sampleExponents,
		Mu:        mu,
		M:         0.314287 * math.Pow(theta, 0.404842),
	}
}

// sampleNetRain builds the 24h pattern of a storm with H1 = 80 mm and the
// sample exponents, and reduces it to R = 120 mm of net rain.
func sampleNetRain(t *testing.T) (rain []storm.HourlyDepth, mu float64) {
	t.Helper()
	const h1 = 80.0
	n := sampleExponents
	h6 := h1 * math.Pow(6, 1-n.N2)
	h24 := h6 * math.Pow(4, 1-n.N3)
	depth := func(hours int) float64 {
		x := float64(hours)
		switch {
		case hours == 1:
			return h1
		case hours == 24:
			return h24
		case hours < 6:
			return h1 * math.Pow(x, 1-n.N2)
		case hours == 6:
			return h6
		}
		return h24 * math.Pow(24, n.N3-1) * math.Pow(x, 1-n.N3)
	}

	var h [25]float64
	for i := 1; i <= 24; i++ {
		h[i] = depth(i)
	}
	d := make([]float64, 25)
	for i := 1; i <= 6; i++ {
		d[i] = (h[24] - h[18]) / 6
	}
	d[15] = h[1]
	for k := 1; k <= 8; k++ {
		d[15-k] = h[2*k] - h[2*k-1]
		d[15+k] = h[2*k+1] - h[2*k]
	}
	d[24] = h[18] - h[17]

	pattern := make([]storm.HourlyDepth, 24)
	for i := range pattern {
		pattern[i] = storm.HourlyDepth{Hour: i + 1, Depth: d[i+1]}
	}

	const r = 120.0
	mu = (h24 - r) / 24
	rain, err := storm.NetRain(pattern, mu, r)
	if err != nil {
		t.Fatal(err)
	}
	return rain, mu
}

func TestPeakFlowConverges(t *testing.T) {
	in := sampleInput(t, 80, 3)
	res, err := NewPeakFlowSolver(0, 0, nil).Solve(in)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(res.Qm-440.658) > 0.01 {
		t.Errorf("qm = %v, expected about 440.658", res.Qm)
	}
	if math.Abs(res.Tau-5.26337) > 1e-4 {
		t.Errorf("tau = %v, expected about 5.26337", res.Tau)
	}
	if !(res.Psi > 0 && res.Psi <= 1) {
		t.Errorf("psi = %v outside (0, 1]", res.Psi)
	}
	if res.Iterations <= 0 || res.Iterations >= DefaultMaxIterations {
		t.Errorf("iterations = %d", res.Iterations)
	}

	// The result is a fixed point of the rational formula.
	tau := 0.278 * in.L / (in.M * math.Cbrt(in.J) * math.Pow(res.Qm, 0.25))
	tn := math.Pow(tau, in.exponent(tau))
	qm := 0.278 * (1 - in.Mu*tn/in.S) * in.S * in.F / tn
	if math.Abs(qm-res.Qm) > 1e-3 {
		t.Errorf("qm %v maps to %v, not a fixed point within 1e-3", res.Qm, qm)
	}
	if math.Abs(tau-res.Tau) > 1e-5 {
		t.Errorf("tau %v, fixed point gives %v", res.Tau, tau)
	}
}

func TestPeakFlowNoLossGivesUnitPsi(t *testing.T) {
	res, err := NewPeakFlowSolver(0, 0, nil).Solve(sampleInput(t, 80, 0))
	if err != nil {
		t.Fatal(err)
	}
	if res.Psi != 1 {
		t.Errorf("psi = %v, expected 1 without infiltration", res.Psi)
	}
}

func TestPeakFlowFailures(t *testing.T) {
	// Losses far beyond the storm drive the discharge negative.
	_, err := NewPeakFlowSolver(0, 0, nil).Solve(sampleInput(t, 80, 500))
	if !hydroerr.IsConvergence(err) {
		t.Errorf("expected ConvergenceError for negative discharge, got %v", err)
	}

	_, err = NewPeakFlowSolver(0, 5, nil).Solve(sampleInput(t, 80, 3))
	if !hydroerr.IsConvergence(err) {
		t.Fatalf("expected ConvergenceError when the iteration cap is hit, got %v", err)
	}
	if ce := err.(*hydroerr.ConvergenceError); ce.Iterations != 5 {
		t.Errorf("iterations = %d, expected the cap 5", ce.Iterations)
	}

	bad := []func(*PeakFlowInput){
		func(in *PeakFlowInput) { in.F = 0 },
		func(in *PeakFlowInput) { in.L = -1 },
		func(in *PeakFlowInput) { in.J = 0 },
		func(in *PeakFlowInput) { in.S = math.NaN() },
		func(in *PeakFlowInput) { in.M = 0 },
		func(in *PeakFlowInput) { in.Mu = -1 },
	}
	for i, mutate := range bad {
		in := sampleInput(t, 80, 3)
		mutate(&in)
		if _, err := NewPeakFlowSolver(0, 0, nil).Solve(in); !hydroerr.IsInput(err) {
			t.Errorf("case %d: expected InputError, got %v", i, err)
		}
	}
}

func TestHydrographInvariants(t *testing.T) {
	rain, mu := sampleNetRain(t)
	peak, err := NewPeakFlowSolver(0, 0, nil).Solve(sampleInput(t, 80, mu))
	if err != nil {
		t.Fatal(err)
	}
	const F, R = 72.0, 120.0

	for _, step := range []float64{1, 0.5} {
		h, err := NewSynthesizer(step, nil).Synthesize(rain, peak, F, R)
		if err != nil {
			t.Fatalf("step %v: %v", step, err)
		}
		samples := h.Samples

		if samples[0].Discharge != 0 || samples[len(samples)-1].Discharge != 0 {
			t.Errorf("step %v: boundary samples %v, %v, expected 0", step, samples[0], samples[len(samples)-1])
		}

		peaks := 0
		for i, smp := range samples {
			if i > 0 && smp.Time <= samples[i-1].Time {
				t.Errorf("step %v: samples not ascending at %d", step, i)
			}
			if smp.Discharge < 0 || smp.Discharge > peak.Qm {
				t.Errorf("step %v: sample %v outside [0, qm]", step, smp)
			}
			if math.Abs(smp.Discharge-peak.Qm) < 1e-9 {
				peaks++
				if smp.Time != h.PeakTime {
					t.Errorf("step %v: qm at %v, expected peak time %v", step, smp.Time, h.PeakTime)
				}
			}
		}
		if peaks != 1 {
			t.Errorf("step %v: %d samples equal qm, expected exactly 1", step, peaks)
		}
		if h.PeakTime != 15 {
			t.Errorf("step %v: peak at %v, expected the end of hour 15", step, h.PeakTime)
		}

		target := h.Fm + peak.Qm*peak.Tau
		volume := trapezoid(samples)
		if math.Abs(volume-target)/target > 0.01 {
			t.Errorf("step %v: volume %v, expected fm + qm·τ = %v within 1%%", step, volume, target)
		}
		if math.Abs(h.W-volume*3600) > 1e-6*h.W {
			t.Errorf("step %v: W = %v, expected %v", step, h.W, volume*3600)
		}
		if h.WRF != 1000*R*F {
			t.Errorf("step %v: WRF = %v", step, h.WRF)
		}
	}
}

func TestConcentrationNodes(t *testing.T) {
	rain := make([]float64, stormHours)
	rain[9] = 10 // hour 10

	nodes, peakTime := concentrationNodes(rain, 10, 3, 50, 30)
	if peakTime != 10 {
		t.Errorf("peak time = %v, expected 10", peakTime)
	}
	// Node at 10 collects all rain; zero nodes at 7 and 13.
	expected := []Sample{{7, 0}, {10, 50}, {13, 0}}
	if len(nodes) != len(expected) {
		t.Fatalf("nodes = %v, expected %v", nodes, expected)
	}
	for i := range expected {
		if math.Abs(nodes[i].Time-expected[i].Time) > 1e-12 || nodes[i].Discharge != expected[i].Discharge {
			t.Errorf("node %d = %v, expected %v", i, nodes[i], expected[i])
		}
	}

	if c := cumulativeRain(rain, 9.5); c != 5 {
		t.Errorf("cumulative rain at 9.5h = %v, expected 5", c)
	}
	if c := cumulativeRain(rain, 30); c != 10 {
		t.Errorf("cumulative rain past 24h = %v, expected 10", c)
	}
}

func TestSynthesizeDegenerate(t *testing.T) {
	rain, mu := sampleNetRain(t)
	peak, err := NewPeakFlowSolver(0, 0, nil).Solve(sampleInput(t, 80, mu))
	if err != nil {
		t.Fatal(err)
	}
	s := NewSynthesizer(0, nil)

	dry := make([]storm.HourlyDepth, 24)
	for i := range dry {
		dry[i].Hour = i + 1
	}

	tests := []struct {
		name string
		rain []storm.HourlyDepth
		peak PeakFlowResult
		R    float64
	}{
		{"empty", nil, peak, 120},
		{"all zero", dry, peak, 120},
		{"zero tau", rain, PeakFlowResult{Qm: peak.Qm}, 120},
		{"zero qm", rain, PeakFlowResult{Tau: peak.Tau}, 120},
		{"no runoff", rain, peak, 0},
		{"correction reaches the peak", twoHourBurst(50), PeakFlowResult{Qm: 600, Tau: 1}, 100},
	}
	for _, tt := range tests {
		if _, err := s.Synthesize(tt.rain, tt.peak, 72, tt.R); !hydroerr.IsDegenerate(err) {
			t.Errorf("%s: expected NumericDegeneracy, got %v", tt.name, err)
		}
	}
}

// twoHourBurst is net rain of depth mm in each of hours 14 and 15.
func twoHourBurst(depth float64) []storm.HourlyDepth {
	rain := make([]storm.HourlyDepth, 24)
	for i := range rain {
		rain[i].Hour = i + 1
	}
	rain[13].Depth, rain[14].Depth = depth, depth
	return rain
}

func TestSynthesizeRejectsBadDepths(t *testing.T) {
	s := NewSynthesizer(0, nil)
	peak := PeakFlowResult{Qm: 600, Tau: 1}

	for _, depth := range []float64{-1, math.NaN(), math.Inf(1)} {
		rain := twoHourBurst(50)
		rain[3].Depth = depth
		if _, err := s.Synthesize(rain, peak, 72, 100); !hydroerr.IsInput(err) {
			t.Errorf("depth %v: expected an input error, got %v", depth, err)
		}
	}
}
