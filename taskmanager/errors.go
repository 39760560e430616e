package taskmanager

import (
	"errors"
	"fmt"
)

var (
	// ErrSchedulingFailure is matched by every *SchedulingError.
	ErrSchedulingFailure = errors.New("taskmanager: scheduling failure")
	// ErrUnitFailure is matched by every *UnitError.
	ErrUnitFailure = errors.New("taskmanager: unit failure")

	ErrCanceled          = errors.New("taskmanager: unit canceled before start")
	ErrManagerClosed     = errors.New("taskmanager: manager closed")
	ErrCapacityExhausted = errors.New("taskmanager: capacity exhausted")
	ErrInvalidDescriptor = errors.New("taskmanager: invalid descriptor")
)

// SchedulingError reports that a unit could not be scheduled. No goroutine
// or store is held for it.
type SchedulingError struct {
	Name string
	Err  error
}

func (e *SchedulingError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("schedule unit: %v", e.Err)
	}
	return fmt.Sprintf("schedule unit %s: %v", e.Name, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }

func (e *SchedulingError) Is(target error) bool { return target == ErrSchedulingFailure }

// UnitError reports that a unit returned an error or panicked. It is only
// ever delivered through the unit's Handle.
type UnitError struct {
	TaskID string
	Name   string
	Err    error
	// Panic holds the recovered value when the unit panicked.
	Panic any
	Stack []byte
}

func (e *UnitError) Error() string {
	label := e.Name
	if label == "" {
		label = e.TaskID
	}
	if e.Panic != nil {
		return fmt.Sprintf("unit %s panicked: %v", label, e.Panic)
	}
	return fmt.Sprintf("unit %s: %v", label, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

func (e *UnitError) Is(target error) bool { return target == ErrUnitFailure }
