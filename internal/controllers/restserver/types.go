package restserver

import (
	"strconv"

	"github.com/chrissnell/designflood/internal/atlas"
	"github.com/chrissnell/designflood/internal/flood"
	"github.com/chrissnell/designflood/internal/pipeline"
	"github.com/chrissnell/designflood/internal/storm"
	"github.com/chrissnell/designflood/pkg/frequency"
)

// DesignFloodRequest is the body of POST /api/v1/design-flood
type DesignFloodRequest struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
	// Area in km², Length of the main channel in km and its Slope.
	Area   float64 `json:"area"`
	Length float64 `json:"length"`
	Slope  float64 `json:"slope"`
	P      float64 `json:"p"`

	Ratio         float64 `json:"ratio,omitempty"`
	ExponentMode  string  `json:"exponent_mode,omitempty"`
	Runoff        string  `json:"runoff,omitempty"`
	Concentration string  `json:"concentration,omitempty"`
	MuSource      string  `json:"mu_source,omitempty"`
	Step          float64 `json:"step,omitempty"`

	Mu    *float64           `json:"mu,omitempty"`
	Imax  *float64           `json:"imax,omitempty"`
	Pa    *float64           `json:"pa,omitempty"`
	M     *float64           `json:"m,omitempty"`
	Alpha map[string]float64 `json:"alpha,omitempty"`
}

func (r DesignFloodRequest) toPipeline() (pipeline.Request, error) {
	req := pipeline.Request{
		Coordinate:    atlas.Coordinate{Lng: r.Lng, Lat: r.Lat},
		F:             r.Area,
		L:             r.Length,
		J:             r.Slope,
		P:             r.P,
		Ratio:         r.Ratio,
		Runoff:        atlas.RunoffCode(r.Runoff),
		Concentration: atlas.ConcentrationMethod(r.Concentration),
		Step:          r.Step,
		Mu:            r.Mu,
		Imax:          r.Imax,
		Pa:            r.Pa,
		M:             r.M,
	}
	if r.ExponentMode != "" {
		mode, err := storm.ParseExponentMode(r.ExponentMode)
		if err != nil {
			return req, err
		}
		req.Mode = mode
	}
	if r.MuSource != "" {
		source, err := pipeline.ParseMuSource(r.MuSource)
		if err != nil {
			return req, err
		}
		req.MuSource = source
	}
	if len(r.Alpha) > 0 {
		req.Alpha = make(map[atlas.Duration]float64, len(r.Alpha))
		for name, v := range r.Alpha {
			d, err := atlas.ParseDuration(name)
			if err != nil {
				return req, err
			}
			req.Alpha[d] = v
		}
	}
	return req, nil
}

// StormResponse is the design storm part of a design flood response
type StormResponse struct {
	Summary         map[string]any      `json:"summary"`
	TemporalPattern []storm.HourlyDepth `json:"temporal_pattern"`
	NetRain         []storm.HourlyDepth `json:"net_rain"`
}

// DesignFloodResponse is the result of POST /api/v1/design-flood
type DesignFloodResponse struct {
	RunID      string                              `json:"run_id"`
	Region     pipeline.RegionInfo                 `json:"region"`
	Statistics map[atlas.Duration]atlas.Statistics `json:"statistics"`
	Storm      StormResponse                       `json:"storm"`
	Theta      float64                             `json:"theta"`
	M          float64                             `json:"m"`
	Mu         float64                             `json:"mu"`
	MuSource   string                              `json:"mu_source"`
	Peak       flood.PeakFlowResult                `json:"peak"`
	Hydrograph *flood.Hydrograph                   `json:"hydrograph"`
}

func newDesignFloodResponse(runID string, res *pipeline.Result) *DesignFloodResponse {
	return &DesignFloodResponse{
		RunID:      runID,
		Region:     res.Region,
		Statistics: res.Statistics,
		Storm: StormResponse{
			Summary:         res.Storm.Summary(),
			TemporalPattern: res.Storm.TemporalPattern(),
			NetRain:         res.Storm.NetRain(),
		},
		Theta:      res.Theta,
		M:          res.M,
		Mu:         res.Mu,
		MuSource:   res.MuSource,
		Peak:       res.Peak,
		Hydrograph: res.Hydrograph,
	}
}

// Header implements responseformat.Tabular with the hydrograph samples
func (r *DesignFloodResponse) Header() []string { return []string{"time_h", "discharge_m3s"} }

func (r *DesignFloodResponse) Rows() [][]string {
	rows := make([][]string, len(r.Hydrograph.Samples))
	for i, s := range r.Hydrograph.Samples {
		rows[i] = []string{formatFloat(s.Time), formatFloat(s.Discharge)}
	}
	return rows
}

// FrequencyRequest is the body of POST /api/v1/frequency
type FrequencyRequest struct {
	Floods []frequency.FloodRecord `json:"floods"`
	// Table is an alternative to Floods: pasted year/discharge rows.
	Table  string                  `json:"table,omitempty"`
	Survey []frequency.FloodRecord `json:"survey,omitempty"`
	N      int                     `json:"n,omitempty"`
	L      int                     `json:"l,omitempty"`
	// Methods defaults to the configured methods; "all" expands to every
	// estimator.
	Methods []string              `json:"methods,omitempty"`
	FitMean *bool                 `json:"fit_mean,omitempty"`
	Manual  *frequency.Parameters `json:"manual,omitempty"`
	Active  string                `json:"active,omitempty"`
	P       []float64             `json:"p,omitempty"`
}

// FrequencyResponse is the result of POST /api/v1/frequency
type FrequencyResponse struct {
	RunID string `json:"run_id"`
	*pipeline.FrequencyResult
}

// Header implements responseformat.Tabular with the active design table
func (r *FrequencyResponse) Header() []string { return []string{"p", "kp", "q"} }

func (r *FrequencyResponse) Rows() [][]string {
	var rows [][]string
	for _, m := range r.Methods {
		if m.Method != r.Active {
			continue
		}
		for _, v := range m.Table {
			rows = append(rows, []string{formatFloat(v.P), formatFloat(v.Kp), formatFloat(v.Q)})
		}
	}
	return rows
}

// RegionResponse is the result of GET /api/v1/regions
type RegionResponse struct {
	Coordinate       atlas.Coordinate                    `json:"coordinate"`
	Region           pipeline.RegionInfo                 `json:"region"`
	InfiltrationRate float64                             `json:"infiltration_rate"`
	Statistics       map[atlas.Duration]atlas.Statistics `json:"statistics"`
	Exponents        atlas.Exponents                     `json:"exponents"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	RunID string `json:"run_id,omitempty"`
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
