package level

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

type Kind uint8

const (
	KindNone Kind = iota
	KindBytes
	KindText
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindText:
		return "text"
	case KindStructured:
		return "structured"
	}
	return "none"
}

// Value is what a store holds: raw bytes, text, or a structured value such as
// a number, a bool or a json object. The zero Value holds nothing.
type Value struct {
	kind Kind
	b    []byte
	s    string
	v    any
}

func Bytes(b []byte) Value {
	return Value{kind: KindBytes, b: b}
}

func Text(s string) Value {
	return Value{kind: KindText, s: s}
}

func Structured(v any) Value {
	return Value{kind: KindStructured, v: v}
}

// ValueOf wraps a native value as returned by the object store.
func ValueOf(v any) Value {
	switch v := v.(type) {
	case nil:
		return Value{}
	case Value:
		return v
	case []byte:
		return Bytes(v)
	case string:
		return Text(v)
	}
	return Structured(v)
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsZero() bool { return v.kind == KindNone }

// Native returns the value as the object store takes it.
func (v Value) Native() any {
	switch v.kind {
	case KindBytes:
		return v.b
	case KindText:
		return v.s
	case KindStructured:
		return v.v
	}
	return nil
}

// String is the text form of the value. Numbers, bools and text print as is,
// bytes as their utf-8 text and other structured values as json.
func (v Value) String() string {
	switch v.kind {
	case KindBytes:
		return string(v.b)
	case KindText:
		return v.s
	case KindStructured:
		if v.primitive() || v.v == nil {
			return fmt.Sprint(v.v)
		}
		if buf, ok := v.v.(*bytes.Buffer); ok {
			return buf.String()
		}
		b, err := json.Marshal(v.v)
		if err != nil {
			return fmt.Sprint(v.v)
		}
		return string(b)
	}
	return ""
}

// Bytes returns the byte form of the value.
func (v Value) Bytes() []byte {
	if v.kind == KindBytes {
		return v.b
	}
	return []byte(v.String())
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBytes, KindText:
		return json.Marshal(v.String())
	case KindStructured:
		return json.Marshal(v.v)
	}
	return []byte("null"), nil
}

// storable reports whether the value can be written. Structured values that
// encode as json null cannot, a later read would not find them.
func (v Value) storable() bool {
	if v.Native() == nil {
		return false
	}
	if v.kind != KindStructured || v.primitive() {
		return true
	}
	if _, ok := v.v.(*bytes.Buffer); ok {
		return true
	}
	b, err := json.Marshal(v.v)
	return err != nil || string(b) != "null"
}

// primitive reports whether a structured value is a number or a bool.
func (v Value) primitive() bool {
	switch v.v.(type) {
	case json.Number, bool:
		return true
	}
	switch reflect.ValueOf(v.v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// truthy: bytes always, text when non-empty, structured unless it is nil,
// false or a numeric zero. NaN counts as truthy.
func (v Value) truthy() bool {
	switch v.kind {
	case KindBytes:
		return true
	case KindText:
		return v.s != ""
	case KindStructured:
		if v.v == nil {
			return false
		}
		switch x := v.v.(type) {
		case bool:
			return x
		case json.Number:
			f, err := x.Float64()
			return err != nil || f != 0
		}
		rv := reflect.ValueOf(v.v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int() != 0
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return rv.Uint() != 0
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			return f != 0 || math.IsNaN(f)
		}
		return true
	}
	return false
}
