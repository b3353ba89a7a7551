// Package curve provides monotonic piecewise-linear lookup curves with an
// explicit extrapolation policy at each end. Duration-area reduction curves
// and rainfall-runoff curves are both expressed as Curve values.
package curve

import (
	"fmt"
	"sort"

	"github.com/chrissnell/designflood/pkg/hydroerr"
	"gonum.org/v1/gonum/interp"
)

// Extrapolation selects what Lookup does outside the curve's point range.
type Extrapolation string

const (
	// Clamp returns the value at the nearest end point. It is the default.
	Clamp Extrapolation = "clamp"
	// Extend continues the end segment linearly.
	Extend Extrapolation = "extend"
	// Line uses a separately fitted line y = slope·x + intercept.
	Line Extrapolation = "line"
	// Reject fails with an InputError.
	Reject Extrapolation = "reject"
)

// Policy is the extrapolation behaviour at one end of a curve.
type Policy struct {
	Mode      Extrapolation `yaml:"mode" json:"mode"`
	Slope     float64       `yaml:"slope,omitempty" json:"slope,omitempty"`
	Intercept float64       `yaml:"intercept,omitempty" json:"intercept,omitempty"`
}

// Definition is the serialisable form of a curve.
type Definition struct {
	ID     string       `yaml:"id" json:"id"`
	Points [][2]float64 `yaml:"points" json:"points"`
	Below  Policy       `yaml:"below,omitempty" json:"below,omitempty"`
	Above  Policy       `yaml:"above,omitempty" json:"above,omitempty"`
}

// Curve is an immutable lookup curve built from a Definition.
type Curve struct {
	id    string
	xs    []float64
	ys    []float64
	below Policy
	above Policy
	fit   interp.PiecewiseLinear
}

// New validates def and builds the curve. Points are sorted by x; x values
// must be distinct and y must be monotonic.
func New(def Definition) (*Curve, error) {
	if def.ID == "" {
		return nil, &hydroerr.InputError{Field: "curve.id", Message: "curve has no id"}
	}
	if len(def.Points) < 2 {
		return nil, &hydroerr.InputError{Field: "curve.points",
			Message: fmt.Sprintf("curve %s needs at least 2 points, has %d", def.ID, len(def.Points))}
	}

	pts := append([][2]float64(nil), def.Points...)
	sort.Slice(pts, func(i, j int) bool { return pts[i][0] < pts[j][0] })

	c := &Curve{
		id:    def.ID,
		xs:    make([]float64, len(pts)),
		ys:    make([]float64, len(pts)),
		below: def.Below,
		above: def.Above,
	}
	for i, p := range pts {
		c.xs[i], c.ys[i] = p[0], p[1]
		if i > 0 && c.xs[i] == c.xs[i-1] {
			return nil, &hydroerr.InputError{Field: "curve.points", Value: c.xs[i],
				Message: fmt.Sprintf("curve %s has a duplicate x", def.ID)}
		}
	}
	if !monotonic(c.ys) {
		return nil, &hydroerr.InputError{Field: "curve.points",
			Message: fmt.Sprintf("curve %s is not monotonic", def.ID)}
	}

	for _, p := range []*Policy{&c.below, &c.above} {
		switch p.Mode {
		case "":
			p.Mode = Clamp
		case Clamp, Extend, Line, Reject:
		default:
			return nil, &hydroerr.InputError{Field: "curve.extrapolation",
				Message: fmt.Sprintf("curve %s: unknown extrapolation %q", def.ID, p.Mode)}
		}
	}

	if err := c.fit.Fit(c.xs, c.ys); err != nil {
		return nil, fmt.Errorf("fitting curve %s: %w", def.ID, err)
	}
	return c, nil
}

func monotonic(ys []float64) bool {
	up, down := true, true
	for i := 1; i < len(ys); i++ {
		if ys[i] < ys[i-1] {
			up = false
		}
		if ys[i] > ys[i-1] {
			down = false
		}
	}
	return up || down
}

// ID returns the curve identifier.
func (c *Curve) ID() string { return c.id }

// Domain returns the x range covered by the curve's points.
func (c *Curve) Domain() (min, max float64) {
	return c.xs[0], c.xs[len(c.xs)-1]
}

// Definition returns the serialisable form of the curve.
func (c *Curve) Definition() Definition {
	pts := make([][2]float64, len(c.xs))
	for i := range c.xs {
		pts[i] = [2]float64{c.xs[i], c.ys[i]}
	}
	return Definition{ID: c.id, Points: pts, Below: c.below, Above: c.above}
}

// Lookup returns y at x.
func (c *Curve) Lookup(x float64) (float64, error) {
	n := len(c.xs)
	switch {
	case x < c.xs[0]:
		return c.extrapolate(c.below, x, 0, 1)
	case x > c.xs[n-1]:
		return c.extrapolate(c.above, x, n-1, n-2)
	}
	return c.fit.Predict(x), nil
}

// extrapolate applies p beyond the end point, using the segment from inner
// to end for linear extension.
func (c *Curve) extrapolate(p Policy, x float64, end, inner int) (float64, error) {
	switch p.Mode {
	case Extend:
		slope := (c.ys[end] - c.ys[inner]) / (c.xs[end] - c.xs[inner])
		return c.ys[end] + slope*(x-c.xs[end]), nil
	case Line:
		return p.Slope*x + p.Intercept, nil
	case Reject:
		lo, hi := c.Domain()
		return 0, &hydroerr.InputError{Field: c.id, Value: x,
			Message: fmt.Sprintf("outside supported range [%g, %g]", lo, hi)}
	default:
		return c.ys[end], nil
	}
}

// Table is a read-only set of curves keyed by id.
type Table struct {
	curves map[string]*Curve
	ids    []string
}

// NewTable builds every definition into a Table. Duplicate ids are rejected.
func NewTable(defs ...Definition) (*Table, error) {
	t := &Table{curves: make(map[string]*Curve, len(defs))}
	for _, def := range defs {
		if _, dup := t.curves[def.ID]; dup {
			return nil, &hydroerr.InputError{Field: "curve.id", Message: fmt.Sprintf("duplicate curve id %q", def.ID)}
		}
		c, err := New(def)
		if err != nil {
			return nil, err
		}
		t.curves[def.ID] = c
		t.ids = append(t.ids, def.ID)
	}
	sort.Strings(t.ids)
	return t, nil
}

// Get returns the curve with the given id.
func (t *Table) Get(id string) (*Curve, error) {
	c, ok := t.curves[id]
	if !ok {
		return nil, &hydroerr.LookupError{What: "curve", Key: id, Message: "no such curve"}
	}
	return c, nil
}

// Lookup returns y at x on curve id.
func (t *Table) Lookup(id string, x float64) (float64, error) {
	c, err := t.Get(id)
	if err != nil {
		return 0, err
	}
	return c.Lookup(x)
}

// IDs returns the curve ids in sorted order.
func (t *Table) IDs() []string {
	return append([]string(nil), t.ids...)
}

// Definitions returns the definitions of all curves in id order.
func (t *Table) Definitions() []Definition {
	defs := make([]Definition, 0, len(t.ids))
	for _, id := range t.ids {
		defs = append(defs, t.curves[id].Definition())
	}
	return defs
}
