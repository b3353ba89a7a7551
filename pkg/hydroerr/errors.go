// Package hydroerr defines the error taxonomy shared by the flood computation
// packages. Each kind is a distinct type so callers can inspect failures with
// errors.As instead of matching on messages.
package hydroerr

import (
	"errors"
	"fmt"
)

// InputError reports a parameter outside the domain a computation accepts,
// such as a frequency outside (0,1) or a non-positive Cv.
type InputError struct {
	Field   string
	Value   float64
	Message string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid input %s=%g: %s", e.Field, e.Value, e.Message)
}

// ConvergenceError reports an iterative computation that failed to reach a
// usable answer.
type ConvergenceError struct {
	Stage      string
	Iterations int
	Message    string
	Err        error
}

func (e *ConvergenceError) Error() string {
	msg := fmt.Sprintf("%s did not converge after %d iterations: %s", e.Stage, e.Iterations, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConvergenceError) Unwrap() error {
	return e.Err
}

// LookupError reports a key (coordinate, region code, curve id) that a
// lookup collaborator does not cover.
type LookupError struct {
	What    string
	Key     string
	Message string
}

func (e *LookupError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %q not found", e.What, e.Key)
	}
	return fmt.Sprintf("%s %q: %s", e.What, e.Key, e.Message)
}

// NumericDegeneracy reports a computation that hit a zero denominator or an
// empty series.
type NumericDegeneracy struct {
	Stage   string
	Message string
}

func (e *NumericDegeneracy) Error() string {
	return fmt.Sprintf("%s: numeric degeneracy: %s", e.Stage, e.Message)
}

// Input builds an InputError.
func Input(field string, value float64, format string, args ...any) error {
	return &InputError{Field: field, Value: value, Message: fmt.Sprintf(format, args...)}
}

// Degenerate builds a NumericDegeneracy.
func Degenerate(stage, format string, args ...any) error {
	return &NumericDegeneracy{Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func IsInput(err error) bool {
	var e *InputError
	return errors.As(err, &e)
}

func IsConvergence(err error) bool {
	var e *ConvergenceError
	return errors.As(err, &e)
}

func IsLookup(err error) bool {
	var e *LookupError
	return errors.As(err, &e)
}

func IsDegenerate(err error) bool {
	var e *NumericDegeneracy
	return errors.As(err, &e)
}
