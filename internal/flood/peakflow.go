// Package flood computes the design flood from a design storm: the peak
// discharge by the rational ("reasoning") formula and the corrected design
// hydrograph.
package flood

import (
	"fmt"
	"math"

	"github.com/chrissnell/designflood/internal/atlas"
	"github.com/chrissnell/designflood/pkg/hydroerr"
	"go.uber.org/zap"
)

const (
	DefaultTolerance     = 1e-3
	DefaultMaxIterations = 10000

	// initialDischargeGuess is the first upper bound of the bisection-style
	// averaging; any realistic peak is far below it.
	initialDischargeGuess = 1e20
)

// PeakFlowInput are the watershed and storm quantities of the rational
// formula.
type PeakFlowInput struct {
	// F is the area in km², L the main channel length in km and J its slope.
	F, L, J float64
	// S is the design 1-hour areal rainfall in mm.
	S         float64
	Exponents atlas.Exponents
	// Mu is the mean infiltration rate in mm/h.
	Mu float64
	// M is the concentration parameter m.
	M float64
}

func (in PeakFlowInput) validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{{"F", in.F}, {"L", in.L}, {"J", in.J}, {"S", in.S}, {"m", in.M}} {
		if !(v.value > 0) || math.IsInf(v.value, 0) {
			return hydroerr.Input(v.name, v.value, "must be positive")
		}
	}
	if in.Mu < 0 || math.IsNaN(in.Mu) {
		return hydroerr.Input("mu", in.Mu, "must not be negative")
	}
	return nil
}

// exponent picks n for concentration time tau.
func (in PeakFlowInput) exponent(tau float64) float64 {
	switch {
	case tau < 1:
		return in.Exponents.N1
	case tau < 6:
		return in.Exponents.N2
	}
	return in.Exponents.N3
}

// PeakFlowResult is the converged fixed point.
type PeakFlowResult struct {
	// Qm is the peak discharge in m³/s.
	Qm float64 `json:"qm"`
	// Tau is the concentration time in hours.
	Tau float64 `json:"tau"`
	// Psi is the peak runoff coefficient.
	Psi        float64 `json:"psi"`
	Iterations int     `json:"iterations"`
}

type solverState int

const (
	iterating solverState = iota
	converged
	failed
)

// PeakFlowSolver iterates the rational formula to its fixed point.
type PeakFlowSolver struct {
	tolerance     float64
	maxIterations int
	logger        *zap.SugaredLogger
}

// NewPeakFlowSolver returns a solver. Non-positive tolerance or iteration
// limits select the defaults.
func NewPeakFlowSolver(tolerance float64, maxIterations int, logger *zap.SugaredLogger) *PeakFlowSolver {
	if !(tolerance > 0) {
		tolerance = DefaultTolerance
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PeakFlowSolver{tolerance: tolerance, maxIterations: maxIterations, logger: logger}
}

// Solve finds qm, τ and ψ such that
//
//	τ  = 0.278·L / (m·J^(1/3)·qm^(1/4))
//	ψ  = 1 - μ·τ^n / S
//	qm = 0.278·ψ·S·F / τ^n
//
// by repeatedly averaging the trial discharge with the discharge it implies.
func (s *PeakFlowSolver) Solve(in PeakFlowInput) (PeakFlowResult, error) {
	if err := in.validate(); err != nil {
		return PeakFlowResult{}, err
	}

	q, qm := 1.0, initialDischargeGuess
	var tau, psi float64
	iterations := 0
	state := iterating
	reason := ""

	for state == iterating {
		if iterations >= s.maxIterations {
			state, reason = failed, fmt.Sprintf("|q - qm| = %g still above tolerance %g", math.Abs(q-qm), s.tolerance)
			break
		}
		iterations++

		q = (q + qm) / 2
		tau = 0.278 * in.L / (in.M * math.Cbrt(in.J) * math.Pow(q, 0.25))
		n := in.exponent(tau)
		tn := math.Pow(tau, n)
		psi = 1 - in.Mu*tn/in.S
		qm = 0.278 * psi * in.S * in.F / tn

		switch {
		case math.IsNaN(qm) || math.IsInf(qm, 0):
			state, reason = failed, "discharge is not finite"
		case qm <= 0:
			state, reason = failed, fmt.Sprintf("discharge %.4g is not positive (ψ=%.4g), losses exceed the storm", qm, psi)
		case math.Abs(q-qm) < s.tolerance:
			state = converged
		}
	}

	if state == failed {
		s.logger.Debugf("peak flow failed after %d iterations: %s", iterations, reason)
		return PeakFlowResult{}, &hydroerr.ConvergenceError{Stage: "peak flow", Iterations: iterations, Message: reason}
	}

	s.logger.Debugf("peak flow converged in %d iterations: qm=%.3f tau=%.4f psi=%.4f", iterations, qm, tau, psi)
	return PeakFlowResult{Qm: qm, Tau: tau, Psi: psi, Iterations: iterations}, nil
}
