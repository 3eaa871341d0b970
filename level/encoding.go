package level

import (
	"bytes"
)

// Binary as Options.ValueEncoding stores values as they are.
const Binary = "binary"

// Options apply to a single operation. A nil *Options means the defaults.
type Options struct {
	// Raw bypasses all value conversion, on write and on read.
	Raw bool
	// NoBuffer returns values as stored instead of as bytes.
	NoBuffer bool
	// ValueEncoding "binary" keeps non-text values as they are on write.
	ValueEncoding string
}

func (o *Options) orDefault() *Options {
	if o == nil {
		return &Options{}
	}
	return o
}

func (o *Options) asBuffer() bool {
	return !o.NoBuffer && !o.Raw
}

// normalize decides the stored form of a value.
//
// Text and numbers or bools are stored as their text form unless the value
// encoding is binary. Bytes and other structured values are kept. A value
// whose text form is "NaN" is stored as the text "NaN".
func normalize(key []byte, value Value, o *Options) ([]byte, Value) {
	o = o.orDefault()
	if o.Raw {
		return key, value
	}

	if buf, ok := value.Native().(*bytes.Buffer); ok && value.Kind() == KindStructured {
		value = Bytes(bytes.Clone(buf.Bytes()))
	}

	if !value.truthy() {
		return key, value
	}

	str := value.String()
	if str == "NaN" {
		value = Text("NaN")
	}
	if o.ValueEncoding != Binary {
		switch {
		case value.Kind() == KindText:
			value = Text(str)
		case value.Kind() == KindStructured && value.primitive():
			value = Text(str)
		}
	}
	return key, value
}

// materialize converts a stored value for the caller. By default values come
// back as bytes, anything that is not bytes as the bytes of its text form.
func materialize(native any, o *Options) Value {
	o = o.orDefault()
	v := ValueOf(native)
	if !o.asBuffer() {
		return v
	}
	if v.Kind() == KindBytes {
		return Bytes(bytes.Clone(v.b))
	}
	return Bytes([]byte(v.String()))
}

func materializeKey(key []byte, o *Options) Value {
	o = o.orDefault()
	if !o.asBuffer() {
		return Text(string(key))
	}
	return Bytes(bytes.Clone(key))
}
