// Package atlas provides the regional lookup data a design flood computation
// needs: hydrologic region classification, point rainfall statistics,
// duration-area reduction curves, rainfall-runoff curves and the basin
// concentration law. All of it is loaded once into a read-only Dataset.
package atlas

import (
	"fmt"
	"strings"

	"github.com/chrissnell/designflood/pkg/hydroerr"
)

// Coordinate is a geographic position in decimal degrees.
type Coordinate struct {
	Lng float64 `json:"lng" yaml:"lng"`
	Lat float64 `json:"lat" yaml:"lat"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Lng, c.Lat)
}

// Duration is one of the four anchor storm durations.
type Duration string

const (
	Min10  Duration = "10min"
	Hour1  Duration = "1h"
	Hour6  Duration = "6h"
	Hour24 Duration = "24h"
)

// Durations lists the anchor durations in increasing order.
var Durations = []Duration{Min10, Hour1, Hour6, Hour24}

// Hours returns the duration in hours.
func (d Duration) Hours() float64 {
	switch d {
	case Min10:
		return 1.0 / 6.0
	case Hour1:
		return 1
	case Hour6:
		return 6
	case Hour24:
		return 24
	}
	return 0
}

// ParseDuration accepts the names used in dataset files.
func ParseDuration(s string) (Duration, error) {
	d := Duration(strings.ToLower(strings.TrimSpace(s)))
	if d.Hours() == 0 {
		return "", &hydroerr.InputError{Field: "duration", Message: fmt.Sprintf("unknown duration %q", s)}
	}
	return d, nil
}

// Statistics is the mean and coefficient of variation of the annual maximum
// point rainfall for one duration, in mm.
type Statistics struct {
	Mean float64 `json:"mean" yaml:"mean"`
	Cv   float64 `json:"cv" yaml:"cv"`
}

// Exponents are the storm decay exponents for durations under 1h (N1),
// 1-6h (N2) and 6-24h (N3).
type Exponents struct {
	N1 float64 `json:"n1" yaml:"n1"`
	N2 float64 `json:"n2" yaml:"n2"`
	N3 float64 `json:"n3" yaml:"n3"`
}

// RegionCode identifies a hydrologic region.
type RegionCode int

// RunoffCode identifies a rainfall-runoff relationship, e.g. "hill-61".
type RunoffCode string

// RainfallAtlas returns point rainfall statistics for a coordinate.
type RainfallAtlas interface {
	Statistics(c Coordinate, d Duration) (Statistics, error)
	Exponents(c Coordinate) (Exponents, error)
}

// RegionClassifier maps a coordinate to its hydrologic region. Coordinates
// outside every region fail with a LookupError.
type RegionClassifier interface {
	Region(c Coordinate) (RegionCode, error)
}

// RunoffCurve gives the runoff depth R for rainfall plus antecedent moisture,
// and the loss parameters of a rainfall-runoff relationship.
type RunoffCurve interface {
	RunoffDepth(code RunoffCode, ppa float64) (float64, error)
	MaxInitialLoss(code RunoffCode) (float64, error)
	AntecedentLoss(code RunoffCode, p float64) (float64, error)
}

// AreaReducer gives the point-to-areal reduction factor of a region for a
// duration and a watershed area in km².
type AreaReducer interface {
	ArealReduction(region RegionCode, d Duration, area float64) (float64, error)
}
