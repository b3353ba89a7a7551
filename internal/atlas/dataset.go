package atlas

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/chrissnell/designflood/pkg/curve"
	"github.com/chrissnell/designflood/pkg/hydroerr"
	"gonum.org/v1/gonum/stat"
)

// coincident is the squared distance below which a coordinate is taken to sit
// on a control point.
const coincident = 1e-18

// ControlPoint is a location where the atlas maps were read.
type ControlPoint struct {
	Name       string                  `json:"name" yaml:"name"`
	Lng        float64                 `json:"lng" yaml:"lng"`
	Lat        float64                 `json:"lat" yaml:"lat"`
	Statistics map[Duration]Statistics `json:"statistics" yaml:"statistics"`
	Exponents  Exponents               `json:"exponents" yaml:"exponents"`
}

func (p ControlPoint) coordinate() Coordinate { return Coordinate{Lng: p.Lng, Lat: p.Lat} }

// File is the serialisable form of a Dataset.
type File struct {
	Name          string             `json:"name" yaml:"name"`
	Regions       []RegionSpec       `json:"regions" yaml:"regions"`
	Runoff        []RunoffSpec       `json:"runoff" yaml:"runoff"`
	ControlPoints []ControlPoint     `json:"control_points" yaml:"control_points"`
	Curves        []curve.Definition `json:"curves" yaml:"curves"`
}

// Dataset is the read-only lookup data for one atlas. It implements
// RainfallAtlas, RegionClassifier, RunoffCurve and AreaReducer, and is safe
// for concurrent use once built.
type Dataset struct {
	name        string
	regions     []*Region
	byCode      map[RegionCode]*Region
	runoff      map[RunoffCode]RegionRunoff
	runoffSpecs []RunoffSpec
	points      map[RegionCode][]ControlPoint
	pointList   []ControlPoint
	curves      *curve.Table
	fingerprint string
}

var (
	_ RainfallAtlas    = (*Dataset)(nil)
	_ RegionClassifier = (*Dataset)(nil)
	_ RunoffCurve      = (*Dataset)(nil)
	_ AreaReducer      = (*Dataset)(nil)
)

// NewDataset validates f and builds the lookup structures. Every curve a
// region or runoff relationship refers to must be present, and every control
// point must fall inside a region.
func NewDataset(f File) (*Dataset, error) {
	curves, err := curve.NewTable(f.Curves...)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", f.Name, err)
	}

	ds := &Dataset{
		name:        f.Name,
		byCode:      make(map[RegionCode]*Region, len(f.Regions)),
		runoff:      make(map[RunoffCode]RegionRunoff, len(f.Runoff)),
		runoffSpecs: append([]RunoffSpec(nil), f.Runoff...),
		points:      make(map[RegionCode][]ControlPoint),
		curves:      curves,
	}

	for _, spec := range f.Runoff {
		if _, dup := ds.runoff[spec.Code]; dup {
			return nil, &hydroerr.InputError{Field: "runoff.code", Message: fmt.Sprintf("duplicate runoff code %s", spec.Code)}
		}
		r, err := newRegionRunoff(spec)
		if err != nil {
			return nil, err
		}
		if _, err := curves.Get(r.CurveID()); err != nil {
			return nil, fmt.Errorf("runoff %s: %w", spec.Code, err)
		}
		ds.runoff[spec.Code] = r
	}

	for _, spec := range f.Regions {
		if _, dup := ds.byCode[spec.Code]; dup {
			return nil, &hydroerr.InputError{Field: "region.code", Value: float64(spec.Code), Message: "duplicate region code"}
		}
		r, err := newRegion(spec)
		if err != nil {
			return nil, err
		}
		if _, ok := ds.runoff[spec.Runoff]; !ok {
			return nil, &hydroerr.LookupError{What: "runoff", Key: string(spec.Runoff), Message: fmt.Sprintf("referenced by region %d", spec.Code)}
		}
		for _, d := range Durations {
			if _, err := curves.Get(spec.AreaCurves[d]); err != nil {
				return nil, fmt.Errorf("region %d %s area curve: %w", spec.Code, d, err)
			}
		}
		if spec.Concentration.Curve != "" {
			if _, err := curves.Get(spec.Concentration.Curve); err != nil {
				return nil, fmt.Errorf("region %d concentration curve: %w", spec.Code, err)
			}
		}
		ds.regions = append(ds.regions, r)
		ds.byCode[spec.Code] = r
	}

	for _, p := range f.ControlPoints {
		for _, d := range Durations {
			s, ok := p.Statistics[d]
			if !ok || !(s.Mean > 0) || !(s.Cv > 0) {
				return nil, &hydroerr.InputError{Field: "control_point.statistics", Message: fmt.Sprintf("control point %s has no valid %s statistics", p.Name, d)}
			}
		}
		code, err := ds.Region(p.coordinate())
		if err != nil {
			return nil, fmt.Errorf("control point %s: %w", p.Name, err)
		}
		ds.points[code] = append(ds.points[code], p)
		ds.pointList = append(ds.pointList, p)
	}

	sum, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", f.Name, err)
	}
	digest := sha256.Sum256(sum)
	ds.fingerprint = hex.EncodeToString(digest[:8])

	return ds, nil
}

// Fingerprint identifies the dataset content; it changes whenever any table
// does.
func (ds *Dataset) Fingerprint() string { return ds.fingerprint }

// Name returns the dataset name.
func (ds *Dataset) Name() string { return ds.name }

// Curves returns the dataset's curve table.
func (ds *Dataset) Curves() *curve.Table { return ds.curves }

// Regions returns the regions in dataset order.
func (ds *Dataset) Regions() []*Region {
	return append([]*Region(nil), ds.regions...)
}

// RegionByCode returns one region.
func (ds *Dataset) RegionByCode(code RegionCode) (*Region, error) {
	r, ok := ds.byCode[code]
	if !ok {
		return nil, &hydroerr.LookupError{What: "region", Key: fmt.Sprint(code)}
	}
	return r, nil
}

// Region returns the code of the first region whose polygon contains c.
func (ds *Dataset) Region(c Coordinate) (RegionCode, error) {
	for _, r := range ds.regions {
		if r.contains(c) {
			return r.Code(), nil
		}
	}
	return 0, &hydroerr.LookupError{What: "coordinate", Key: c.String(), Message: "outside every hydrologic region"}
}

// Statistics interpolates the point rainfall statistics at c from the
// control points of c's region, weighting by inverse squared distance.
func (ds *Dataset) Statistics(c Coordinate, d Duration) (Statistics, error) {
	if d.Hours() == 0 {
		return Statistics{}, &hydroerr.InputError{Field: "duration", Message: fmt.Sprintf("unknown duration %q", d)}
	}
	pts, err := ds.controlPoints(c)
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{
		Mean: idw(c, pts, func(p ControlPoint) float64 { return p.Statistics[d].Mean }),
		Cv:   idw(c, pts, func(p ControlPoint) float64 { return p.Statistics[d].Cv }),
	}, nil
}

// Exponents interpolates the atlas decay exponents at c.
func (ds *Dataset) Exponents(c Coordinate) (Exponents, error) {
	pts, err := ds.controlPoints(c)
	if err != nil {
		return Exponents{}, err
	}
	return Exponents{
		N1: idw(c, pts, func(p ControlPoint) float64 { return p.Exponents.N1 }),
		N2: idw(c, pts, func(p ControlPoint) float64 { return p.Exponents.N2 }),
		N3: idw(c, pts, func(p ControlPoint) float64 { return p.Exponents.N3 }),
	}, nil
}

func (ds *Dataset) controlPoints(c Coordinate) ([]ControlPoint, error) {
	code, err := ds.Region(c)
	if err != nil {
		return nil, err
	}
	pts := ds.points[code]
	if len(pts) == 0 {
		return nil, &hydroerr.LookupError{What: "region", Key: fmt.Sprint(code), Message: "no atlas control points"}
	}
	return pts, nil
}

func idw(c Coordinate, pts []ControlPoint, value func(ControlPoint) float64) float64 {
	values := make([]float64, len(pts))
	weights := make([]float64, len(pts))
	for i, p := range pts {
		d2 := squaredDistance(c, p.coordinate())
		if d2 < coincident {
			return value(p)
		}
		values[i] = value(p)
		weights[i] = 1 / d2
	}
	return stat.Mean(values, weights)
}

// Runoff returns a rainfall-runoff relationship.
func (ds *Dataset) Runoff(code RunoffCode) (RegionRunoff, error) {
	r, ok := ds.runoff[code]
	if !ok {
		return nil, &hydroerr.LookupError{What: "runoff", Key: string(code)}
	}
	return r, nil
}

// RunoffCodes returns the relationship codes in dataset order.
func (ds *Dataset) RunoffCodes() []RunoffCode {
	codes := make([]RunoffCode, len(ds.runoffSpecs))
	for i, s := range ds.runoffSpecs {
		codes[i] = s.Code
	}
	return codes
}

// RunoffDepth reads R in mm from the relationship's P+Pa curve.
func (ds *Dataset) RunoffDepth(code RunoffCode, ppa float64) (float64, error) {
	r, err := ds.Runoff(code)
	if err != nil {
		return 0, err
	}
	if ppa < 0 {
		return 0, hydroerr.Input("P+Pa", ppa, "must not be negative")
	}
	depth, err := ds.curves.Lookup(r.CurveID(), ppa)
	if err != nil {
		return 0, err
	}
	return max(depth, 0), nil
}

// MaxInitialLoss returns Imax for a relationship.
func (ds *Dataset) MaxInitialLoss(code RunoffCode) (float64, error) {
	r, err := ds.Runoff(code)
	if err != nil {
		return 0, err
	}
	return r.MaxInitialLoss(), nil
}

// AntecedentLoss returns Pa for a relationship and design frequency p.
func (ds *Dataset) AntecedentLoss(code RunoffCode, p float64) (float64, error) {
	if !(p > 0 && p < 1) {
		return 0, hydroerr.Input("p", p, "frequency must be in (0, 1)")
	}
	r, err := ds.Runoff(code)
	if err != nil {
		return 0, err
	}
	return r.AntecedentLoss(p), nil
}

// ArealReduction reads the region's duration-area curve at area km².
func (ds *Dataset) ArealReduction(code RegionCode, d Duration, area float64) (float64, error) {
	r, err := ds.RegionByCode(code)
	if err != nil {
		return 0, err
	}
	if !(area > 0) {
		return 0, hydroerr.Input("F", area, "area must be positive")
	}
	id, ok := r.spec.AreaCurves[d]
	if !ok {
		return 0, &hydroerr.LookupError{What: "area curve", Key: string(d), Message: fmt.Sprintf("region %d", code)}
	}
	alpha, err := ds.curves.Lookup(id, area)
	if err != nil {
		return 0, err
	}
	if !(alpha > 0) {
		return 0, hydroerr.Input("F", area, "areal reduction factor %.4f for %s is not positive", alpha, d)
	}
	return alpha, nil
}

// Concentration returns the concentration parameter m of a region for basin
// shape factor θ. An empty method prefers the fitted law.
func (ds *Dataset) Concentration(code RegionCode, theta float64, method ConcentrationMethod) (float64, error) {
	r, err := ds.RegionByCode(code)
	if err != nil {
		return 0, err
	}
	if !(theta > 0) {
		return 0, hydroerr.Input("theta", theta, "must be positive")
	}
	law := r.spec.Concentration

	if method == "" {
		method = ConcentrationFit
		if !law.hasFit() {
			method = ConcentrationChart
		}
	}

	switch method {
	case ConcentrationFit:
		if !law.hasFit() {
			return 0, &hydroerr.LookupError{What: "concentration law", Key: fmt.Sprint(code), Message: "region has no fitted law"}
		}
		return law.Coefficient * math.Pow(theta, law.Exponent), nil
	case ConcentrationChart:
		if law.Curve == "" {
			return 0, &hydroerr.LookupError{What: "concentration chart", Key: fmt.Sprint(code), Message: "region has no chart curve"}
		}
		return ds.curves.Lookup(law.Curve, theta)
	}
	return 0, &hydroerr.InputError{Field: "concentration_method", Message: fmt.Sprintf("unknown method %q", method)}
}

// File returns the serialisable form of the dataset.
func (ds *Dataset) File() File {
	f := File{
		Name:          ds.name,
		Runoff:        append([]RunoffSpec(nil), ds.runoffSpecs...),
		ControlPoints: append([]ControlPoint(nil), ds.pointList...),
		Curves:        ds.curves.Definitions(),
	}
	for _, r := range ds.regions {
		f.Regions = append(f.Regions, r.Spec())
	}
	return f
}
