// Package optional provides a value that is either unset or set, used to build
// sparse updates where "leave unchanged" must differ from "set to empty".
package optional

import (
	"bytes"
	"encoding/json"
)

// Value is either unset or holds a value of type T.
type Value[T any] struct {
	v   T
	set bool
}

// Of returns a set Value holding v.
func Of[T any](v T) Value[T] {
	return Value[T]{v: v, set: true}
}

// None returns an unset Value.
func None[T any]() Value[T] {
	return Value[T]{}
}

// NonEmpty returns an unset Value for "" and a set Value otherwise.
func NonEmpty(s string) Value[string] {
	if s == "" {
		return None[string]()
	}
	return Of(s)
}

// IsSet reports whether the value was set.
func (o Value[T]) IsSet() bool { return o.set }

// Get returns the held value and whether it was set.
func (o Value[T]) Get() (T, bool) { return o.v, o.set }

// OrElse returns the held value, or fallback when unset.
func (o Value[T]) OrElse(fallback T) T {
	if !o.set {
		return fallback
	}
	return o.v
}

// UnmarshalJSON sets the value; a JSON null leaves it unset.
// Absent keys never reach this method, so they stay unset as well.
func (o *Value[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Value[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Of(v)
	return nil
}

// MarshalJSON encodes the held value, or null when unset.
func (o Value[T]) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.v)
}
