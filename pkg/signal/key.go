package signal

import "reflect"

// Key binds a signal name to the payload type carried on it.
// Keys are usually declared once as package-level variables:
//
//	var PlayerHit = signal.NewKey[HitEvent]("player.hit")
type Key[T any] struct {
	name string
}

// NewKey returns a key for the named signal carrying payloads of type T.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the signal name.
func (k Key[T]) Name() string {
	return k.name
}

func (k Key[T]) String() string {
	return k.name + "<" + typeName(reflect.TypeFor[T]()) + ">"
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "none"
	}
	return t.String()
}
