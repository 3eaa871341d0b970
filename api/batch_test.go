package api

import (
	"encoding/json"
	"testing"

	"github.com/aep/cursorkv/level"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatches(t *testing.T) {
	batches, err := ParseBatches([]byte(`
ops:
  - type: put
    key: a
    value: one
---
encoding: binary
ops:
  - type: put
    key: b
    value: AAE=
  - type: del
    key: a
`))
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "one", batches[0].Ops[0].Value)
	assert.Equal(t, level.Binary, batches[1].Encoding)

	_, err = ParseBatches([]byte("ops: [\n"))
	assert.Error(t, err)
}

func TestLevelOps(t *testing.T) {
	tests := []struct {
		name string
		req  BatchRequest
		want []level.Op
		opts *level.Options
		err  error
	}{
		{
			name: "text and numbers",
			req: BatchRequest{Ops: []Op{
				{Type: OpPut, Key: "a", Value: "x"},
				{Type: OpPut, Key: "n", Value: json.Number("5")},
				{Type: OpDel, Key: "a"},
			}},
			want: []level.Op{
				{Type: level.OpPut, Key: []byte("a"), Value: level.Text("x")},
				{Type: level.OpPut, Key: []byte("n"), Value: level.Text("5")},
				{Type: level.OpDel, Key: []byte("a")},
			},
		},
		{
			name: "structured",
			req:  BatchRequest{Ops: []Op{{Type: OpPut, Key: "o", Value: map[string]any{"x": true}}}},
			want: []level.Op{{Type: level.OpPut, Key: []byte("o"), Value: level.Structured(map[string]any{"x": true})}},
		},
		{
			name: "binary",
			req:  BatchRequest{Encoding: level.Binary, Ops: []Op{{Type: OpPut, Key: "b", Value: "AAE="}, {Type: OpDel, Key: "c"}}},
			want: []level.Op{
				{Type: level.OpPut, Key: []byte("b"), Value: level.Bytes([]byte{0, 1})},
				{Type: level.OpDel, Key: []byte("c")},
			},
			opts: &level.Options{ValueEncoding: level.Binary},
		},
		{
			name: "unknown type",
			req:  BatchRequest{Ops: []Op{{Type: "merge", Key: "a"}}},
			err:  level.ErrInvalidOp,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, opts, err := tt.req.LevelOps()
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ops)
			assert.Equal(t, tt.opts, opts)
		})
	}

	_, _, err := (&BatchRequest{Encoding: level.Binary, Ops: []Op{{Type: OpPut, Key: "b", Value: 5}}}).LevelOps()
	assert.Error(t, err)
}
