package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")

	// ErrDataIntegrity marks an event history that cannot describe a real
	// position: out-of-order events, events after a terminal state, or a
	// close that leaves a residual balance.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrInputConstraint marks a caller-supplied argument that violates an
	// operation precondition.
	ErrInputConstraint = errors.New("input constraint violation")

	// ErrNoPrice is returned when no collateral price is available for a
	// timestamp.
	ErrNoPrice = errors.New("no price available")
)

// DataIntegrityError describes which position and event broke the history.
type DataIntegrityError struct {
	PositionID string
	EventID    string
	Reason     string
}

func (e *DataIntegrityError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("data integrity: position %s: %s", e.PositionID, e.Reason)
	}
	return fmt.Sprintf("data integrity: position %s event %s: %s", e.PositionID, e.EventID, e.Reason)
}

func (e *DataIntegrityError) Unwrap() error { return ErrDataIntegrity }

// InputConstraintError names the offending argument.
type InputConstraintError struct {
	Field  string
	Reason string
}

func (e *InputConstraintError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InputConstraintError) Unwrap() error { return ErrInputConstraint }
