package storm

import (
	"math"

	"github.com/chrissnell/designflood/pkg/hydroerr"
)

// peakHour is the hour that receives the heaviest hourly rain.
const peakHour = 15

// temporalPattern distributes the 24h areal depth over 24 hours. With H(t)
// the areal depth for duration t, hour 15 gets H(1), the hours either side
// get successive differences H(2k)-H(2k-1) before and H(2k+1)-H(2k) after,
// hour 24 gets H(18)-H(17) and hours 1-6 share H(24)-H(18) evenly. The sum
// telescopes to H(24).
func (s *Storm) temporalPattern() ([]HourlyDepth, error) {
	var h [25]float64
	for t := 1; t <= 24; t++ {
		v, err := s.ArealDepth(float64(t))
		if err != nil {
			return nil, err
		}
		h[t] = v
	}

	depths := make([]float64, 25)
	for t := 1; t <= 6; t++ {
		depths[t] = (h[24] - h[18]) / 6
	}
	depths[peakHour] = h[1]
	for k := 1; k <= 8; k++ {
		depths[peakHour-k] = h[2*k] - h[2*k-1]
		depths[peakHour+k] = h[2*k+1] - h[2*k]
	}
	depths[24] = h[18] - h[17]

	pattern := make([]HourlyDepth, 24)
	for t := 1; t <= 24; t++ {
		pattern[t-1] = HourlyDepth{Hour: t, Depth: depths[t]}
	}
	return pattern, nil
}

// NetRain subtracts a uniform loss of mu mm per hour from every hour of
// pattern, floors at zero, then rescales so the series sums to r exactly.
func NetRain(pattern []HourlyDepth, mu, r float64) ([]HourlyDepth, error) {
	if len(pattern) == 0 {
		return nil, hydroerr.Degenerate("net rain", "empty rainfall pattern")
	}
	if r < 0 || math.IsNaN(r) {
		return nil, hydroerr.Input("R", r, "runoff depth must not be negative")
	}

	net := make([]HourlyDepth, len(pattern))
	var sum float64
	for i, h := range pattern {
		net[i] = HourlyDepth{Hour: h.Hour, Depth: math.Max(0, h.Depth-mu)}
		sum += net[i].Depth
	}

	if r == 0 {
		for i := range net {
			net[i].Depth = 0
		}
		return net, nil
	}
	if sum == 0 {
		return nil, hydroerr.Degenerate("net rain", "loss rate %.3f mm/h absorbs all rain but R=%.3f", mu, r)
	}
	if sum != r {
		scale := r / sum
		for i := range net {
			net[i].Depth *= scale
		}
	}
	return net, nil
}
