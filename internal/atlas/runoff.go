package atlas

import (
	"fmt"

	"github.com/chrissnell/designflood/pkg/hydroerr"
)

// RunoffKind tags the terrain a rainfall-runoff relationship was derived for.
type RunoffKind string

const (
	Hill RunoffKind = "hill"
	Flat RunoffKind = "flat"
)

// fullMoistureFrequency is the frequency at and below which the antecedent
// moisture is taken as the full initial loss Imax.
const fullMoistureFrequency = 1.0 / 50.0

// flat terrain relationships share one loss parameter set unless the dataset
// overrides it.
const (
	flatMaxInitialLoss    = 100
	flatRunoffCoefficient = 0.9
)

// RunoffSpec is the dataset form of a rainfall-runoff relationship.
type RunoffSpec struct {
	Code        RunoffCode `json:"code" yaml:"code"`
	Kind        RunoffKind `json:"kind" yaml:"kind"`
	Curve       string     `json:"curve" yaml:"curve"`
	Imax        float64    `json:"imax,omitempty" yaml:"imax,omitempty"`
	K           float64    `json:"k,omitempty" yaml:"k,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
}

// RegionRunoff is the loss capability of one rainfall-runoff relationship.
type RegionRunoff interface {
	Code() RunoffCode
	Kind() RunoffKind
	CurveID() string
	Description() string
	// MaxInitialLoss is Imax in mm.
	MaxInitialLoss() float64
	// AntecedentLoss is Pa for design frequency p.
	AntecedentLoss(p float64) float64
	// RunoffCoefficient is the relationship's K.
	RunoffCoefficient() float64
}

type runoffBase struct {
	spec RunoffSpec
}

func (r runoffBase) Code() RunoffCode           { return r.spec.Code }
func (r runoffBase) CurveID() string            { return r.spec.Curve }
func (r runoffBase) Description() string        { return r.spec.Description }
func (r runoffBase) MaxInitialLoss() float64    { return r.spec.Imax }
func (r runoffBase) RunoffCoefficient() float64 { return r.spec.K }

func (r runoffBase) AntecedentLoss(p float64) float64 {
	return AntecedentMoisture(r.spec.Imax, p)
}

// AntecedentMoisture is the antecedent rainfall index Pa for initial loss
// imax: the full imax for rare storms (p <= 1/50), two thirds of it otherwise.
func AntecedentMoisture(imax, p float64) float64 {
	if p <= fullMoistureFrequency {
		return imax
	}
	return imax * 2 / 3
}

type hillRunoff struct{ runoffBase }

func (hillRunoff) Kind() RunoffKind { return Hill }

type flatRunoff struct{ runoffBase }

func (flatRunoff) Kind() RunoffKind { return Flat }

// newRegionRunoff builds the variant for spec.Kind. Hill relationships must
// carry their own Imax and K; flat ones fall back to the shared values.
func newRegionRunoff(spec RunoffSpec) (RegionRunoff, error) {
	if spec.Code == "" {
		return nil, &hydroerr.InputError{Field: "runoff.code", Message: "runoff relationship has no code"}
	}
	if spec.Curve == "" {
		return nil, &hydroerr.InputError{Field: "runoff.curve", Message: fmt.Sprintf("runoff %s has no curve", spec.Code)}
	}
	if spec.Imax < 0 || spec.K < 0 {
		return nil, &hydroerr.InputError{Field: "runoff.imax", Value: spec.Imax, Message: fmt.Sprintf("runoff %s has negative loss parameters", spec.Code)}
	}

	switch spec.Kind {
	case Hill:
		if spec.Imax == 0 || spec.K == 0 {
			return nil, &hydroerr.InputError{Field: "runoff.imax", Message: fmt.Sprintf("hill runoff %s needs imax and k", spec.Code)}
		}
		return hillRunoff{runoffBase{spec}}, nil
	case Flat:
		if spec.Imax == 0 {
			spec.Imax = flatMaxInitialLoss
		}
		if spec.K == 0 {
			spec.K = flatRunoffCoefficient
		}
		return flatRunoff{runoffBase{spec}}, nil
	}
	return nil, &hydroerr.InputError{Field: "runoff.kind", Message: fmt.Sprintf("runoff %s has unknown kind %q", spec.Code, spec.Kind)}
}
