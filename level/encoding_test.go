package level

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	object := map[string]any{"a": 1}

	tests := []struct {
		name string
		in   Value
		opts *Options
		want Value
	}{
		{"text stays text", Text("hello"), nil, Text("hello")},
		{"empty text", Text(""), nil, Text("")},
		{"int becomes text", Structured(42), nil, Text("42")},
		{"float becomes text", Structured(1.5), nil, Text("1.5")},
		{"json number becomes text", Structured(json.Number("7")), nil, Text("7")},
		{"true becomes text", Structured(true), nil, Text("true")},
		{"false is kept", Structured(false), nil, Structured(false)},
		{"zero is kept", Structured(0), nil, Structured(0)},
		{"NaN becomes text", Structured(math.NaN()), nil, Text("NaN")},
		{"NaN bytes become text", Bytes([]byte("NaN")), nil, Text("NaN")},
		{"NaN binary becomes text", Structured(math.NaN()), &Options{ValueEncoding: Binary}, Text("NaN")},
		{"bytes are kept", Bytes([]byte{0, 1}), nil, Bytes([]byte{0, 1})},
		{"object is kept", Structured(object), nil, Structured(object)},
		{"binary keeps numbers", Structured(42), &Options{ValueEncoding: Binary}, Structured(42)},
		{"buffer becomes bytes", Structured(bytes.NewBufferString("buf")), nil, Bytes([]byte("buf"))},
		{"raw keeps numbers", Structured(42), &Options{Raw: true}, Structured(42)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, got := normalize([]byte("k"), tt.in, tt.opts)
			assert.Equal(t, []byte("k"), key)
			assert.Equal(t, tt.want.Kind(), got.Kind())
			if tt.want.Kind() == KindStructured {
				assert.Equal(t, tt.want.String(), got.String())
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMaterialize(t *testing.T) {
	tests := []struct {
		name   string
		native any
		opts   *Options
		want   Value
	}{
		{"bytes", []byte("b"), nil, Bytes([]byte("b"))},
		{"text as bytes", "t", nil, Bytes([]byte("t"))},
		{"number as bytes", json.Number("12"), nil, Bytes([]byte("12"))},
		{"bool as bytes", false, nil, Bytes([]byte("false"))},
		{"object as bytes", map[string]any{"a": "b"}, nil, Bytes([]byte(`{"a":"b"}`))},
		{"no buffer text", "t", &Options{NoBuffer: true}, Text("t")},
		{"no buffer number", json.Number("12"), &Options{NoBuffer: true}, Structured(json.Number("12"))},
		{"raw bytes", []byte("b"), &Options{Raw: true}, Bytes([]byte("b"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, materialize(tt.native, tt.opts))
		})
	}
}

func TestMaterializeCopiesBytes(t *testing.T) {
	stored := []byte("abc")
	v := materialize(stored, nil)
	stored[0] = 'x'
	assert.Equal(t, "abc", v.String())
}

func TestMaterializeKey(t *testing.T) {
	assert.Equal(t, Bytes([]byte("k")), materializeKey([]byte("k"), nil))
	assert.Equal(t, Text("k"), materializeKey([]byte("k"), &Options{NoBuffer: true}))
	assert.Equal(t, Text("k"), materializeKey([]byte("k"), &Options{Raw: true}))
}

func TestTruthy(t *testing.T) {
	assert.True(t, Bytes(nil).truthy())
	assert.False(t, Text("").truthy())
	assert.False(t, Structured(nil).truthy())
	assert.False(t, Structured(uint8(0)).truthy())
	assert.False(t, Structured(json.Number("0")).truthy())
	assert.True(t, Structured(json.Number("0.5")).truthy())
	assert.True(t, Structured(math.NaN()).truthy())
	assert.True(t, Structured([]int{}).truthy())
	assert.False(t, Value{}.truthy())
}
