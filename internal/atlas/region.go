package atlas

import (
	"fmt"
	"math"

	"github.com/chrissnell/designflood/pkg/hydroerr"
)

// ConcentrationMethod selects how m is read from θ.
type ConcentrationMethod string

const (
	// ConcentrationFit evaluates the fitted power law m = a·θ^b.
	ConcentrationFit ConcentrationMethod = "fit"
	// ConcentrationChart interpolates the digitised θ-m chart curve.
	ConcentrationChart ConcentrationMethod = "chart"
)

// ConcentrationLaw relates the basin shape factor θ to the concentration
// parameter m for one region.
type ConcentrationLaw struct {
	Coefficient float64 `json:"coefficient,omitempty" yaml:"coefficient,omitempty"`
	Exponent    float64 `json:"exponent,omitempty" yaml:"exponent,omitempty"`
	Curve       string  `json:"curve,omitempty" yaml:"curve,omitempty"`
}

func (l ConcentrationLaw) hasFit() bool { return l.Coefficient > 0 }

// RegionSpec is the dataset form of a hydrologic region.
type RegionSpec struct {
	Code    RegionCode   `json:"code" yaml:"code"`
	Name    string       `json:"name" yaml:"name"`
	Polygon [][2]float64 `json:"polygon" yaml:"polygon"`
	// Runoff is the default rainfall-runoff relationship for the region.
	Runoff RunoffCode `json:"runoff" yaml:"runoff"`
	// Mu is the tabulated mean infiltration rate in mm/h.
	Mu            float64             `json:"mu" yaml:"mu"`
	AreaCurves    map[Duration]string `json:"area_curves" yaml:"area_curves"`
	Concentration ConcentrationLaw    `json:"concentration" yaml:"concentration"`
}

// Region is a validated region held by a Dataset.
type Region struct {
	spec RegionSpec
	bbox [4]float64
}

func (r *Region) Code() RegionCode          { return r.spec.Code }
func (r *Region) Name() string              { return r.spec.Name }
func (r *Region) DefaultRunoff() RunoffCode { return r.spec.Runoff }

// InfiltrationRate returns the region's tabulated μ in mm/h.
func (r *Region) InfiltrationRate() float64 { return r.spec.Mu }

// Spec returns a copy of the region's dataset form.
func (r *Region) Spec() RegionSpec {
	s := r.spec
	s.Polygon = append([][2]float64(nil), r.spec.Polygon...)
	s.AreaCurves = make(map[Duration]string, len(r.spec.AreaCurves))
	for d, id := range r.spec.AreaCurves {
		s.AreaCurves[d] = id
	}
	return s
}

// Theta returns the basin shape factor θ = L / F^(1/4) / J^(1/3) for area F
// in km², main channel length L in km and slope J.
func Theta(F, L, J float64) (float64, error) {
	switch {
	case !(F > 0):
		return 0, hydroerr.Input("F", F, "area must be positive")
	case !(L > 0):
		return 0, hydroerr.Input("L", L, "channel length must be positive")
	case !(J > 0):
		return 0, hydroerr.Input("J", J, "channel slope must be positive")
	}
	return L / math.Pow(F, 0.25) / math.Cbrt(J), nil
}

func newRegion(spec RegionSpec) (*Region, error) {
	if len(spec.Polygon) < 3 {
		return nil, &hydroerr.InputError{Field: "region.polygon", Message: fmt.Sprintf("region %d needs at least 3 vertices", spec.Code)}
	}
	if spec.Runoff == "" {
		return nil, &hydroerr.InputError{Field: "region.runoff", Message: fmt.Sprintf("region %d has no runoff relationship", spec.Code)}
	}
	if spec.Mu < 0 {
		return nil, hydroerr.Input("region.mu", spec.Mu, "region %d has a negative infiltration rate", spec.Code)
	}
	for _, d := range Durations {
		if spec.AreaCurves[d] == "" {
			return nil, &hydroerr.InputError{Field: "region.area_curves", Message: fmt.Sprintf("region %d has no %s area curve", spec.Code, d)}
		}
	}
	law := spec.Concentration
	if !law.hasFit() && law.Curve == "" {
		return nil, &hydroerr.InputError{Field: "region.concentration", Message: fmt.Sprintf("region %d has no concentration law", spec.Code)}
	}
	return &Region{spec: spec, bbox: boundingBox(spec.Polygon)}, nil
}

func (r *Region) contains(c Coordinate) bool {
	if c.Lng < r.bbox[0] || c.Lng > r.bbox[2] || c.Lat < r.bbox[1] || c.Lat > r.bbox[3] {
		return false
	}
	return pointInPolygon(r.spec.Polygon, c.Lng, c.Lat)
}
