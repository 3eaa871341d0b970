package idb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundRejectsInvertedRanges(t *testing.T) {
	tests := []struct {
		name       string
		lower      string
		upper      string
		lowerOpen  bool
		upperOpen  bool
		shouldFail bool
	}{
		{"ordered", "a", "b", false, false, false},
		{"inverted", "b", "a", false, false, true},
		{"equal closed", "a", "a", false, false, false},
		{"equal lower open", "a", "a", true, false, true},
		{"equal upper open", "a", "a", false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Bound([]byte(tt.lower), []byte(tt.upper), tt.lowerOpen, tt.upperOpen)
			if tt.shouldFail {
				assert.ErrorIs(t, err, ErrData)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKeyRangeIncludes(t *testing.T) {
	closed, err := Bound([]byte("b"), []byte("d"), false, false)
	require.NoError(t, err)
	open, err := Bound([]byte("b"), []byte("d"), true, true)
	require.NoError(t, err)

	tests := []struct {
		name string
		rng  *KeyRange
		key  string
		want bool
	}{
		{"closed lower edge", closed, "b", true},
		{"closed upper edge", closed, "d", true},
		{"closed below", closed, "a", false},
		{"closed above", closed, "da", false},
		{"open lower edge", open, "b", false},
		{"open just above lower", open, "b\x00", true},
		{"open upper edge", open, "d", false},
		{"upper bound", UpperBound([]byte("c"), true), "bzzz", true},
		{"upper bound edge", UpperBound([]byte("c"), true), "c", false},
		{"lower bound", LowerBound([]byte("c"), false), "c", true},
		{"only", Only([]byte("c")), "c", true},
		{"only other", Only([]byte("c")), "ca", false},
		{"nil range", nil, "anything", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rng.Includes([]byte(tt.key)))
		})
	}
}

func TestKeyRangeSpan(t *testing.T) {
	r, err := Bound([]byte("b"), []byte("d"), true, false)
	require.NoError(t, err)

	start, end := r.span()
	assert.Equal(t, []byte("b\x00"), start)
	assert.Equal(t, []byte("d\x00"), end)

	start, end = UpperBound([]byte("d"), true).span()
	assert.Nil(t, start)
	assert.Equal(t, []byte("d"), end)

	assert.Equal(t, `("b", "d"]`, r.String())
}

func TestStoreEnd(t *testing.T) {
	assert.Equal(t, []byte("s\xffdatb"), storeEnd([]byte("s\xffdata\xff")))
	assert.Nil(t, storeEnd([]byte{0xff}))
}

func TestSerde(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
		tag   byte
	}{
		{"bytes", []byte("raw"), []byte("raw"), 'b'},
		{"string", "text", "text", 's'},
		{"number", 42, json.Number("42"), 'j'},
		{"bool", true, true, 'j'},
		{"object", map[string]any{"a": "b"}, map[string]any{"a": "b"}, 'j'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := serializeValue(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.tag, b[0])

			v, err := deserializeValue(b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}

	_, err := serializeValue(nil)
	assert.ErrorIs(t, err, ErrData)

	_, err = deserializeValue([]byte("xnope"))
	assert.Error(t, err)
}
