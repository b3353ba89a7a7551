package flood

import (
	"math"
	"sort"

	"github.com/chrissnell/designflood/internal/storm"
	"github.com/chrissnell/designflood/pkg/hydroerr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"
)

// DefaultStep is the hydrograph output interval in hours.
const DefaultStep = 1.0

// stormHours is the length of the net rain series.
const stormHours = 24

// sameTime is the tolerance for matching the peak time to a grid time.
const sameTime = 1e-9

// volumeTolerance is the largest relative difference allowed between the
// corrected hydrograph volume and 0.278·R·F.
const volumeTolerance = 0.01

// Sample is one hydrograph ordinate.
type Sample struct {
	Time      float64 `json:"time"`
	Discharge float64 `json:"discharge"`
}

// Hydrograph is the corrected design flood hydrograph.
type Hydrograph struct {
	// Samples are ascending in time, start and end at zero discharge and
	// contain the peak exactly once.
	Samples  []Sample `json:"samples"`
	PeakTime float64  `json:"peak_time"`
	Qm       float64  `json:"qm"`
	Tau      float64  `json:"tau"`
	// Nodes are the τ-spaced ordinates before resampling, peak pinned.
	Nodes []Sample `json:"nodes"`
	// Ratio is the factor applied to every non-peak sample.
	Ratio float64 `json:"ratio"`
	// Fm is the target volume outside the peak, 0.278·R·F - qm·τ, in
	// (m³/s)·h.
	Fm float64 `json:"fm"`
	// WRF is the runoff volume 1000·R·F in m³.
	WRF float64 `json:"wrf"`
	// W is the volume under the hydrograph in m³.
	W float64 `json:"w"`
}

// Synthesizer builds design hydrographs.
type Synthesizer struct {
	step   float64
	logger *zap.SugaredLogger
}

// NewSynthesizer returns a synthesizer that resamples every step hours;
// DefaultStep when step is not positive.
func NewSynthesizer(step float64, logger *zap.SugaredLogger) *Synthesizer {
	if !(step > 0) {
		step = DefaultStep
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Synthesizer{step: step, logger: logger}
}

// Synthesize turns hourly net rain into a design hydrograph for a watershed
// of area F km² with runoff depth R mm, given the peak flow fixed point.
func (s *Synthesizer) Synthesize(netRain []storm.HourlyDepth, peak PeakFlowResult, F, R float64) (*Hydrograph, error) {
	switch {
	case len(netRain) == 0:
		return nil, hydroerr.Degenerate("hydrograph", "empty net rain series")
	case !(peak.Tau > 0):
		return nil, hydroerr.Degenerate("hydrograph", "concentration time %g is not positive", peak.Tau)
	case !(peak.Qm > 0):
		return nil, hydroerr.Degenerate("hydrograph", "peak discharge %g is not positive", peak.Qm)
	case !(F > 0):
		return nil, hydroerr.Input("F", F, "area must be positive")
	case !(R > 0):
		return nil, hydroerr.Degenerate("hydrograph", "runoff depth %g leaves no flood volume", R)
	}

	rain := make([]float64, stormHours)
	maxHour := 0
	for _, h := range netRain {
		if h.Hour < 1 || h.Hour > stormHours {
			return nil, hydroerr.Input("hour", float64(h.Hour), "net rain hours must be 1..24")
		}
		if !(h.Depth >= 0) || math.IsInf(h.Depth, 1) {
			return nil, hydroerr.Input("depth", h.Depth, "net rain depth must be finite and not negative")
		}
		rain[h.Hour-1] = h.Depth
	}
	for i, v := range rain {
		if v >= rain[maxHour] {
			maxHour = i
		}
	}
	if !(rain[maxHour] > 0) {
		return nil, hydroerr.Degenerate("hydrograph", "net rain series is all zero")
	}

	qm, tau := peak.Qm, peak.Tau
	nodes, peakTime := concentrationNodes(rain, float64(maxHour+1), tau, qm, F)

	samples, peakIndex, err := s.resample(nodes, peakTime, qm)
	if err != nil {
		return nil, err
	}

	target := 0.278 * R * F
	fm := target - qm*tau
	raw := trapezoid(samples)

	var peakWeight float64
	if peakIndex > 0 {
		peakWeight += samples[peakIndex].Time - samples[peakIndex-1].Time
	}
	if peakIndex < len(samples)-1 {
		peakWeight += samples[peakIndex+1].Time - samples[peakIndex].Time
	}
	peakVolume := qm * peakWeight / 2

	rest := raw - peakVolume
	if rest <= 0 {
		return nil, hydroerr.Degenerate("hydrograph", "no volume outside the peak to correct")
	}
	ratio := (target - peakVolume) / rest
	if ratio < 0 {
		return nil, hydroerr.Degenerate("hydrograph", "the peak alone holds more than the runoff volume (ratio %.4f)", ratio)
	}

	var clipped int
	for i := range samples {
		if i == peakIndex {
			continue
		}
		q := samples[i].Discharge * ratio
		if q >= qm {
			clipped++
			q = qm
		}
		samples[i].Discharge = q
	}
	if clipped > 0 {
		return nil, hydroerr.Degenerate("hydrograph", "correction ratio %.4f lifts %d samples to the peak %.3f", ratio, clipped, qm)
	}
	if volume := trapezoid(samples); math.Abs(volume-target) > volumeTolerance*target {
		return nil, hydroerr.Degenerate("hydrograph", "corrected volume %.3f misses the runoff volume %.3f", volume, target)
	}

	h := &Hydrograph{
		Samples:  samples,
		PeakTime: peakTime,
		Qm:       qm,
		Tau:      tau,
		Nodes:    nodes,
		Ratio:    ratio,
		Fm:       fm,
		WRF:      1000 * R * F,
		W:        trapezoid(samples) * 3600,
	}
	s.logger.Debugf("hydrograph: %d samples, peak %.3f at %.3fh, ratio %.4f, W=%.0f m³, WRF=%.0f m³",
		len(samples), qm, peakTime, ratio, h.W, h.WRF)
	return h, nil
}

// cumulativeRain is the net rain fallen by time t, with hour k covering
// (k-1, k] and rain spread evenly within the hour.
func cumulativeRain(rain []float64, t float64) float64 {
	t = math.Max(0, math.Min(t, stormHours))
	whole := int(t)
	var c float64
	for i := 0; i < whole; i++ {
		c += rain[i]
	}
	if whole < stormHours {
		c += rain[whole] * (t - float64(whole))
	}
	return c
}

// concentrationNodes spaces nodes τ apart around the end of the heaviest
// hour, converts the rain falling in each node interval into discharge, adds
// zero nodes one τ outside the wet ones and pins the largest node to qm.
func concentrationNodes(rain []float64, anchor, tau, qm, F float64) ([]Sample, float64) {
	var times []float64
	for k := 1; ; k++ {
		t := anchor - float64(k)*tau
		if t <= 0 {
			break
		}
		times = append(times, t)
	}
	sort.Float64s(times)
	for k := 0; ; k++ {
		t := anchor + float64(k)*tau
		if t >= stormHours+tau {
			break
		}
		times = append(times, t)
	}

	var nodes []Sample
	prev := 0.0
	for _, t := range times {
		c := cumulativeRain(rain, t)
		if depth := c - prev; depth > 0 {
			nodes = append(nodes, Sample{Time: t, Discharge: 0.278 * depth * F / tau})
		}
		prev = c
	}

	first := nodes[0].Time - tau
	if first < 0 {
		first = 0
	}
	last := nodes[len(nodes)-1].Time + tau
	nodes = append([]Sample{{Time: first}}, nodes...)
	nodes = append(nodes, Sample{Time: last})

	peak := 0
	for i, n := range nodes {
		if n.Discharge > nodes[peak].Discharge {
			peak = i
		}
	}
	nodes[peak].Discharge = qm
	return nodes, nodes[peak].Time
}

// resample interpolates the nodes every step hours from 0 through the hour
// after the last node, then puts the exact peak back.
func (s *Synthesizer) resample(nodes []Sample, peakTime, qm float64) ([]Sample, int, error) {
	xs := make([]float64, len(nodes))
	ys := make([]float64, len(nodes))
	for i, n := range nodes {
		xs[i], ys[i] = n.Time, n.Discharge
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, 0, hydroerr.Degenerate("hydrograph", "interpolating nodes: %v", err)
	}

	end := math.Floor(xs[len(xs)-1]) + 1
	count := int(math.Floor(end/s.step+sameTime)) + 1

	samples := make([]Sample, 0, count+1)
	for i := 0; i < count; i++ {
		t := float64(i) * s.step
		samples = append(samples, Sample{Time: t, Discharge: pl.Predict(t)})
	}

	peakIndex := sort.Search(len(samples), func(i int) bool { return samples[i].Time >= peakTime-sameTime })
	switch {
	case peakIndex < len(samples) && math.Abs(samples[peakIndex].Time-peakTime) < sameTime:
		samples[peakIndex] = Sample{Time: peakTime, Discharge: qm}
	default:
		samples = append(samples, Sample{})
		copy(samples[peakIndex+1:], samples[peakIndex:])
		samples[peakIndex] = Sample{Time: peakTime, Discharge: qm}
	}
	return samples, peakIndex, nil
}

// trapezoid integrates discharge over time in hours.
func trapezoid(samples []Sample) float64 {
	if len(samples) < 2 {
		return 0
	}
	ts := make([]float64, len(samples))
	qs := make([]float64, len(samples))
	for i, smp := range samples {
		ts[i], qs[i] = smp.Time, smp.Discharge
	}
	return integrate.Trapezoidal(ts, qs)
}
