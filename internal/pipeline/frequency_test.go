package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/chrissnell/designflood/internal/observability"
	"github.com/chrissnell/designflood/pkg/frequency"
	"github.com/chrissnell/designflood/pkg/hydroerr"
)

func shortRecord() []frequency.FloodRecord {
	return []frequency.FloodRecord{{Year: 2001, Discharge: 10}, {Year: 2002, Discharge: 20}, {Year: 2003, Discharge: 30}, {Year: 2004, Discharge: 60}}
}

func TestAnalyzeMoment(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	a := NewFrequencyAnalyzer(metrics, nil)

	res, err := a.Analyze(context.Background(), FrequencyRequest{
		Floods:        shortRecord(),
		Methods:       []frequency.Method{frequency.MethodMoment},
		Probabilities: []float64{0.01, 0.5},
	})
	if err != nil {
		t.Fatal(err)
	}

	expected := frequency.Parameters{Cv: 0.7200822998230956, Cs: 1.190340128278995, Mean: 30}
	if math.Abs(res.Moment.Cv-expected.Cv) > 1e-9 || math.Abs(res.Moment.Cs-expected.Cs) > 1e-9 || res.Moment.Mean != expected.Mean {
		t.Errorf("moment = %+v, expected %+v", res.Moment, expected)
	}
	if res.Extended || len(res.Points) != 4 {
		t.Errorf("expected a continuous series of 4 points, got extended=%v with %d", res.Extended, len(res.Points))
	}
	if res.Active != frequency.MethodMoment || len(res.Methods) != 1 {
		t.Fatalf("active %s with %d methods, expected moment only", res.Active, len(res.Methods))
	}
	table := res.Methods[0].Table
	if len(table) != 2 || !(table[0].Q > table[1].Q) {
		t.Errorf("design table %+v, expected two rows with decreasing discharge", table)
	}
	for _, row := range table {
		if math.Abs(row.Kp*expected.Mean-row.Q) > 1e-9 {
			t.Errorf("p=%v: Kp·mean = %v, Q = %v", row.P, row.Kp*expected.Mean, row.Q)
		}
	}

	if got := testutil.ToFloat64(metrics.Runs.WithLabelValues("frequency", "ok")); got != 1 {
		t.Errorf("frequency ok runs = %v, expected 1", got)
	}
}

func TestAnalyzeFixedMean(t *testing.T) {
	a := NewFrequencyAnalyzer(observability.NewMetricsForTesting(), nil)

	res, err := a.Analyze(context.Background(), FrequencyRequest{
		Floods:  shortRecord(),
		Methods: []frequency.Method{frequency.MethodFit1},
		FitMean: false,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Methods) != 1 {
		t.Fatalf("%d methods, expected fit1 only", len(res.Methods))
	}
	if got := res.Methods[0].Parameters.Mean; got != res.Moment.Mean {
		t.Errorf("fit1 mean = %v, expected it held at the moment mean %v", got, res.Moment.Mean)
	}
}

func TestAnalyzeExtendedManual(t *testing.T) {
	a := NewFrequencyAnalyzer(observability.NewMetricsForTesting(), nil)

	floods := []frequency.FloodRecord{{Year: 2000, Discharge: 100}, {Year: 2001, Discharge: 50}, {Year: 2002, Discharge: 40}, {Year: 2003, Discharge: 30}, {Year: 2004, Discharge: 20}}
	manual := frequency.Parameters{Cv: 0.9, Cs: 3.6, Mean: 40}
	res, err := a.Analyze(context.Background(), FrequencyRequest{
		Floods:  floods,
		Survey:  []frequency.FloodRecord{{Year: 1900, Discharge: 300}},
		N:       50,
		L:       1,
		Methods: []frequency.Method{frequency.MethodMoment},
		Manual:  &manual,
	})
	if err != nil {
		t.Fatal(err)
	}

	if !res.Extended {
		t.Error("expected an extended series")
	}
	if math.Abs(res.Moment.Mean-41.6) > 1e-9 {
		t.Errorf("moment mean = %v, expected 41.6", res.Moment.Mean)
	}
	if res.Active != frequency.MethodManual {
		t.Errorf("active = %s, expected manual", res.Active)
	}
	var found bool
	for _, m := range res.Methods {
		if m.Method == frequency.MethodManual {
			found = true
			if m.Parameters != manual {
				t.Errorf("manual parameters %+v, expected %+v", m.Parameters, manual)
			}
		}
	}
	if !found {
		t.Error("manual parameter set missing from the result")
	}
}

func TestAnalyzeErrors(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	a := NewFrequencyAnalyzer(metrics, nil)

	_, err := a.Analyze(context.Background(), FrequencyRequest{
		Floods:  shortRecord()[:2],
		Methods: []frequency.Method{frequency.MethodMoment},
	})
	if !hydroerr.IsInput(err) {
		t.Errorf("two floods: expected an input error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Analyze(ctx, FrequencyRequest{Floods: shortRecord(), Methods: []frequency.Method{frequency.MethodMoment}})
	if !hydroerr.IsConvergence(err) {
		t.Errorf("cancelled: expected a convergence error, got %v", err)
	}

	if got := testutil.ToFloat64(metrics.Runs.WithLabelValues("frequency", "input")); got != 1 {
		t.Errorf("input runs = %v, expected 1", got)
	}
}
