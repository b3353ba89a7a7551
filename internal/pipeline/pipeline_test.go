package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/chrissnell/designflood/internal/atlas"
	"github.com/chrissnell/designflood/internal/observability"
	"github.com/chrissnell/designflood/internal/storm"
	"github.com/chrissnell/designflood/pkg/hydroerr"
)

const sampleDataset = "../../data/sample-dataset.yaml"

// controlPoint sits on control point r5-a, so the atlas statistics are read
// without interpolation.
var controlPoint = atlas.Coordinate{Lng: 112.54, Lat: 34.28}

func newTestPipeline(t *testing.T) (*Pipeline, *observability.Metrics) {
	t.Helper()
	ds, err := atlas.LoadYAML(sampleDataset)
	if err != nil {
		t.Fatalf("loading dataset: %v", err)
	}
	metrics := observability.NewMetricsForTesting()
	return New(ds, Options{Ratio: storm.DefaultRatio, Mode: storm.Derived}, metrics, nil), metrics
}

func watershed() Request {
	return Request{Coordinate: controlPoint, F: 72, L: 18, J: 0.003, P: 0.01}
}

func TestRunDesignFlood(t *testing.T) {
	p, metrics := newTestPipeline(t)

	res, err := p.Run(context.Background(), watershed())
	if err != nil {
		t.Fatal(err)
	}

	if res.Region.Code != 5 || res.Region.Runoff != "hill-5" {
		t.Errorf("region = %+v, expected region 5 with hill-5", res.Region)
	}
	if got := res.Statistics[atlas.Hour1]; got.Mean != 40 || got.Cv != 0.5 {
		t.Errorf("1h statistics = %+v, expected the r5-a control point", got)
	}

	tests := []struct {
		name     string
		got      float64
		expected float64
		epsilon  float64
	}{
		{"theta", res.Theta, 42.84488, 1e-4},
		{"m", res.M, 2.33478, 1e-4},
		{"S", res.Storm.S(), 100.0052, 1e-3},
		{"R", res.Storm.RunoffDepth(), 223.3899, 1e-3},
		{"mu", res.Mu, 2.47991, 1e-4},
		{"qm", res.Peak.Qm, 1026.549, 0.01},
		{"tau", res.Peak.Tau, 2.62534, 1e-4},
		{"psi", res.Peak.Psi, 0.95388, 1e-4},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.expected) > tt.epsilon {
			t.Errorf("%s = %v, expected %v", tt.name, tt.got, tt.expected)
		}
	}

	if res.MuSource != string(MuStorm) || res.Mu != res.Storm.Mu() {
		t.Errorf("mu source %s (%v), expected the storm estimate %v", res.MuSource, res.Mu, res.Storm.Mu())
	}

	h := res.Hydrograph
	if h.Qm != res.Peak.Qm || h.PeakTime != 15 {
		t.Errorf("hydrograph peak %v at %v, expected %v at 15", h.Qm, h.PeakTime, res.Peak.Qm)
	}
	peaks := 0
	for _, s := range h.Samples {
		if s.Discharge == h.Qm {
			peaks++
		}
	}
	if peaks != 1 {
		t.Errorf("found %d samples at qm, expected exactly 1", peaks)
	}
	if h.Samples[0].Discharge != 0 || h.Samples[len(h.Samples)-1].Discharge != 0 {
		t.Errorf("hydrograph must start and end at zero discharge")
	}
	if math.Abs(h.W-h.WRF)/h.WRF > 0.01 {
		t.Errorf("W = %.0f m³, expected within 1%% of WRF = %.0f m³", h.W, h.WRF)
	}

	if got := testutil.ToFloat64(metrics.Runs.WithLabelValues("design_flood", "ok")); got != 1 {
		t.Errorf("ok runs = %v, expected 1", got)
	}
	if got := testutil.CollectAndCount(metrics.SolverIterations); got != 1 {
		t.Errorf("solver iteration series = %d, expected 1", got)
	}
}

func TestRunInfiltrationSources(t *testing.T) {
	p, _ := newTestPipeline(t)
	mu := 3.0

	tests := []struct {
		name       string
		source     MuSource
		mu         *float64
		expectedMu float64
		expectedBy string
	}{
		{"region table", MuRegion, nil, 5, "region"},
		{"request overrides source", MuRegion, &mu, 3, "request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := watershed()
			req.MuSource = tt.source
			req.Mu = tt.mu

			res, err := p.Run(context.Background(), req)
			if err != nil {
				t.Fatal(err)
			}
			if res.Mu != tt.expectedMu || res.MuSource != tt.expectedBy {
				t.Errorf("mu = %v from %s, expected %v from %s", res.Mu, res.MuSource, tt.expectedMu, tt.expectedBy)
			}
			if res.Storm.Mu() != res.Mu || res.Storm.MuEstimated() {
				t.Errorf("net rain used mu %v (estimated %v), peak flow used %v", res.Storm.Mu(), res.Storm.MuEstimated(), res.Mu)
			}
			psi := 1 - res.Mu*math.Pow(res.Peak.Tau, exponentAt(res.Storm.Exponents(), res.Peak.Tau))/res.Storm.S()
			if math.Abs(psi-res.Peak.Psi) > 1e-3 {
				t.Errorf("psi = %v, expected %v for mu %v", res.Peak.Psi, psi, res.Mu)
			}
		})
	}

	req := watershed()
	req.MuSource = MuRegion
	res, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Peak.Qm-965.565) > 0.01 {
		t.Errorf("qm with the region rate = %v, expected 965.565", res.Peak.Qm)
	}
}

func TestRunDefaultInfiltrationSource(t *testing.T) {
	ds, err := atlas.LoadYAML(sampleDataset)
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{Ratio: storm.DefaultRatio, Mode: storm.Derived, MuSource: MuRegion}
	p := New(ds, opts, observability.NewMetricsForTesting(), nil)

	res, err := p.Run(context.Background(), watershed())
	if err != nil {
		t.Fatal(err)
	}
	if res.MuSource != string(MuRegion) || res.Mu != 5 || res.Storm.Mu() != 5 {
		t.Errorf("mu %v from %s (storm %v), expected the region rate 5", res.Mu, res.MuSource, res.Storm.Mu())
	}

	// A request naming its source wins over the configured one.
	req := watershed()
	req.MuSource = MuStorm
	if res, err = p.Run(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if res.MuSource != string(MuStorm) || math.Abs(res.Mu-2.47991) > 1e-4 {
		t.Errorf("mu %v from %s, expected the storm estimate 2.47991", res.Mu, res.MuSource)
	}

	p = New(ds, Options{MuSource: "guess"}, observability.NewMetricsForTesting(), nil)
	if _, err := p.Run(context.Background(), watershed()); !hydroerr.IsInput(err) {
		t.Errorf("expected an input error for an unknown source, got %v", err)
	}
}

func exponentAt(n atlas.Exponents, tau float64) float64 {
	switch {
	case tau < 1:
		return n.N1
	case tau < 6:
		return n.N2
	}
	return n.N3
}

func TestRunOverrides(t *testing.T) {
	p, _ := newTestPipeline(t)

	req := watershed()
	m := 1.5
	req.M = &m
	req.Mode = storm.Atlas
	req.Step = 0.5

	res, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.M != m {
		t.Errorf("m = %v, expected the override %v", res.M, m)
	}
	if n := res.Storm.Exponents(); n.N1 != 0.5 || n.N2 != 0.7 || n.N3 != 0.8 {
		t.Errorf("exponents = %+v, expected the atlas values", n)
	}
	if dt := res.Hydrograph.Samples[1].Time - res.Hydrograph.Samples[0].Time; dt != 0.5 {
		t.Errorf("sample step = %v, expected 0.5", dt)
	}
}

func TestRunErrors(t *testing.T) {
	p, metrics := newTestPipeline(t)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		mutate  func(*Request)
		check   func(error) bool
		outcome string
	}{
		{
			name:    "outside every region",
			ctx:     context.Background(),
			mutate:  func(r *Request) { r.Coordinate = atlas.Coordinate{Lng: 100, Lat: 20} },
			check:   hydroerr.IsLookup,
			outcome: "lookup",
		},
		{
			name:    "frequency out of range",
			ctx:     context.Background(),
			mutate:  func(r *Request) { r.P = 1.5 },
			check:   hydroerr.IsInput,
			outcome: "input",
		},
		{
			name:    "negative slope",
			ctx:     context.Background(),
			mutate:  func(r *Request) { r.J = -0.01 },
			check:   hydroerr.IsInput,
			outcome: "input",
		},
		{
			name:    "unknown runoff relationship",
			ctx:     context.Background(),
			mutate:  func(r *Request) { r.Runoff = "hill-99" },
			check:   hydroerr.IsLookup,
			outcome: "lookup",
		},
		{
			name:   "cancelled",
			ctx:    cancelled,
			mutate: func(*Request) {},
			check: func(err error) bool {
				return hydroerr.IsConvergence(err) && errors.Is(err, context.Canceled)
			},
			outcome: "convergence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := watershed()
			tt.mutate(&req)
			before := testutil.ToFloat64(metrics.Runs.WithLabelValues("design_flood", tt.outcome))

			res, err := p.Run(tt.ctx, req)
			if err == nil {
				t.Fatalf("expected an error, got %+v", res)
			}
			if !tt.check(err) {
				t.Errorf("unexpected error kind: %v", err)
			}
			if got := testutil.ToFloat64(metrics.Runs.WithLabelValues("design_flood", tt.outcome)); got != before+1 {
				t.Errorf("%s runs = %v, expected %v", tt.outcome, got, before+1)
			}
		})
	}
}

func TestSetDataset(t *testing.T) {
	p, metrics := newTestPipeline(t)
	first := p.Dataset()

	ds, err := atlas.LoadYAML(sampleDataset)
	if err != nil {
		t.Fatal(err)
	}
	p.SetDataset(ds)
	if p.Dataset() != ds || p.Dataset() == first {
		t.Error("SetDataset did not replace the dataset")
	}
	if got := testutil.ToFloat64(metrics.DatasetRegions); got != float64(len(ds.Regions())) {
		t.Errorf("dataset regions gauge = %v, expected %d", got, len(ds.Regions()))
	}
	if _, err := p.Run(context.Background(), watershed()); err != nil {
		t.Errorf("run after reload: %v", err)
	}
}

func TestRunStageTiming(t *testing.T) {
	observability.SetClock(clockwork.NewFakeClock())
	defer observability.SetClock(nil)

	p, metrics := newTestPipeline(t)
	if _, err := p.Run(context.Background(), watershed()); err != nil {
		t.Fatal(err)
	}
	// storm, peak_flow and hydrograph
	if got := testutil.CollectAndCount(metrics.StageDuration); got != 3 {
		t.Errorf("stage duration series = %d, expected 3", got)
	}
}

func TestParseMuSource(t *testing.T) {
	tests := []struct {
		in       string
		expected MuSource
		err      bool
	}{
		{"", MuStorm, false},
		{"storm", MuStorm, false},
		{"region", MuRegion, false},
		{"table", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMuSource(tt.in)
		if (err != nil) != tt.err || got != tt.expected {
			t.Errorf("ParseMuSource(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, "ok"},
		{hydroerr.Input("F", -1, "must be positive"), "input"},
		{&hydroerr.LookupError{What: "region", Key: "9"}, "lookup"},
		{&hydroerr.ConvergenceError{Stage: "peak flow"}, "convergence"},
		{hydroerr.Degenerate("net rain", "empty"), "degenerate"},
		{errors.New("disk on fire"), "error"},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.expected {
			t.Errorf("Outcome(%v) = %s, expected %s", tt.err, got, tt.expected)
		}
	}
}
