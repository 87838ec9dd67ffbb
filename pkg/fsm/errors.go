package fsm

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned by Parse for an unknown definition format.
var ErrUnsupportedFormat = errors.New("unsupported definition format")

// StateError is the base interface for definition errors tied to one state.
type StateError interface {
	error
	// StateName returns the state the error refers to.
	StateName() string
}

// UnknownStateError is returned when a definition references a state it does not declare.
type UnknownStateError struct {
	Machine string
	State   string
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("machine %s: unknown state: %s", e.Machine, e.State)
}

// StateName returns the state name.
func (e *UnknownStateError) StateName() string {
	return e.State
}

// DuplicateStateError is returned when a definition declares a state twice.
type DuplicateStateError struct {
	Machine string
	State   string
}

func (e *DuplicateStateError) Error() string {
	return fmt.Sprintf("machine %s: duplicate state: %s", e.Machine, e.State)
}

// StateName returns the state name.
func (e *DuplicateStateError) StateName() string {
	return e.State
}
