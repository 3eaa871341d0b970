package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aep/cursorkv/level"
	"sigs.k8s.io/yaml"
)

// ParseBatches reads batches from yaml documents separated by "---".
//
//	ops:
//	  - type: put
//	    key: user/1
//	    value: alice
//	  - type: del
//	    key: user/2
func ParseBatches(data []byte) ([]BatchRequest, error) {
	docs := strings.Split(string(data), "---\n")
	var batches []BatchRequest

	for _, doc := range docs {
		if strings.TrimSpace(doc) == "" {
			continue
		}

		var b BatchRequest
		if err := yaml.Unmarshal([]byte(doc), &b); err != nil {
			return nil, fmt.Errorf("failed to parse batch: %v", err)
		}

		batches = append(batches, b)
	}

	return batches, nil
}

// opValue converts a decoded batch value. Numbers are kept as their text.
func opValue(v any, binary bool) (level.Value, error) {
	if v == nil {
		return level.Value{}, nil
	}
	if binary {
		b, err := DecodeBinary(v)
		if err != nil {
			return level.Value{}, err
		}
		return level.Bytes(b), nil
	}
	switch v := v.(type) {
	case string:
		return level.Text(v), nil
	case json.Number:
		return level.Text(v.String()), nil
	}
	return level.Structured(v), nil
}

// LevelOps converts the request for level.Store.Batch, together with the
// options it asks for.
func (r *BatchRequest) LevelOps() ([]level.Op, *level.Options, error) {
	binary := r.Encoding == level.Binary
	ops := make([]level.Op, 0, len(r.Ops))
	for i, o := range r.Ops {
		var t level.OpType
		switch o.Type {
		case OpPut:
			t = level.OpPut
		case OpDel:
			t = level.OpDel
		default:
			return nil, nil, fmt.Errorf("ops[%d]: %w: %q", i, level.ErrInvalidOp, o.Type)
		}

		v, err := opValue(o.Value, binary && t == level.OpPut)
		if err != nil {
			return nil, nil, fmt.Errorf("ops[%d]: %w", i, err)
		}
		ops = append(ops, level.Op{Type: t, Key: []byte(o.Key), Value: v})
	}

	var opts *level.Options
	if binary {
		opts = &level.Options{ValueEncoding: level.Binary}
	}
	return ops, opts, nil
}
