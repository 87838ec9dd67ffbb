package signal

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrPayloadMismatch is returned when a typed operation uses a payload
	// type that differs from the one already declared for the signal.
	ErrPayloadMismatch = errors.New("signal payload type mismatch")

	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("signal handler cannot be nil")
)

// PayloadMismatchError carries the conflicting types of a rejected typed operation.
type PayloadMismatchError struct {
	Signal   string
	Declared reflect.Type
	Got      reflect.Type
}

func (e *PayloadMismatchError) Error() string {
	return fmt.Sprintf("signal %q: payload declared as %s, got %s",
		e.Signal, typeName(e.Declared), typeName(e.Got))
}

func (e *PayloadMismatchError) Unwrap() error {
	return ErrPayloadMismatch
}
