package observability

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetClock(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2024, 7, 20, 8, 0, 0, 0, time.UTC))
	SetClock(fake)
	defer SetClock(nil)

	start := Clock().Now()
	fake.Advance(1500 * time.Millisecond)
	if got := Clock().Since(start); got != 1500*time.Millisecond {
		t.Errorf("Since = %s, expected 1.5s", got)
	}

	SetClock(nil)
	if _, ok := Clock().(*clockwork.FakeClock); ok {
		t.Error("SetClock(nil) should restore the real clock")
	}
}

func TestMetricsForTesting(t *testing.T) {
	a, b := NewMetricsForTesting(), NewMetricsForTesting()
	a.Runs.WithLabelValues("design_flood", "ok").Inc()
	a.CacheLookups.WithLabelValues("hit").Inc()

	if got := testutil.ToFloat64(a.Runs.WithLabelValues("design_flood", "ok")); got != 1 {
		t.Errorf("runs = %v, expected 1", got)
	}
	if got := testutil.ToFloat64(b.Runs.WithLabelValues("design_flood", "ok")); got != 0 {
		t.Errorf("collectors are shared between instances: runs = %v", got)
	}
	if got := testutil.CollectAndCount(a.CacheLookups); got != 1 {
		t.Errorf("cache lookup series = %d, expected 1", got)
	}
}
