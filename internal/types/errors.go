package types

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput wraps caller-side validation failures. These are
	// rejected before any write happens.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned when a lifecycle change is not
	// permitted by the entity's state machine.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSessionRunning is returned when a project already has a running
	// discovery session.
	ErrSessionRunning = errors.New("discovery session already running for project")

	// ErrBoundViolation marks a computed value outside its declared range.
	// It is a defect, never silently clamped.
	ErrBoundViolation = errors.New("value out of bounds")

	// ErrDuplicateKey marks a write that collides with a unique pattern key.
	ErrDuplicateKey = errors.New("duplicate key")
)

// invalidf builds an ErrInvalidInput error with context.
func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// CheckUnit verifies that v lies in [0,1]. Used for every bounded score
// before it is written.
func CheckUnit(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %s=%v not in [0,1]", ErrBoundViolation, name, v)
	}
	return nil
}

// CheckNonNegative verifies that v is a finite, non-negative number.
func CheckNonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s=%v must be >= 0", ErrBoundViolation, name, v)
	}
	return nil
}

// Clamp01 pins a derived score to [0,1]; NaN becomes 0. Stored values are
// still checked with CheckUnit.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
