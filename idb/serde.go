package idb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Stored values carry a one byte tag: 'b' raw bytes, 's' a string,
// 'j' anything else as json.

func serializeValue(v any) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: value is nil", ErrData)
	case []byte:
		return append([]byte{'b'}, v...), nil
	case string:
		return append([]byte{'s'}, v...), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrData, err)
	}
	return append([]byte{'j'}, b...), nil
}

func deserializeValue(b []byte) (any, error) {
	if len(b) < 1 {
		return nil, errors.New("empty value stored in database")
	}
	switch b[0] {
	case 'b':
		return append([]byte{}, b[1:]...), nil
	case 's':
		return string(b[1:]), nil
	case 'j':
		var v any
		dec := json.NewDecoder(bytes.NewReader(b[1:]))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, errors.New("invalid encoding stored in database")
}
