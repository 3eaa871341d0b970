package api

import (
	"encoding/base64"
	"fmt"
)

// Change is published on the bus after every successful write.
type Change struct {
	Op   string   `json:"op"`
	Keys []string `json:"keys"`
}

const (
	OpPut   = "put"
	OpDel   = "del"
	OpBatch = "batch"
)

type Op struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
}

type BatchRequest struct {
	Ops []Op `json:"ops"`
	// Encoding "binary" makes string values base64 encoded bytes.
	Encoding string `json:"encoding,omitempty"`
}

type BatchResponse struct {
	Written int `json:"written"`
}

// RangeEntry is one line of a range response. A line with Error set ends the
// stream.
type RangeEntry struct {
	Key   string `json:"key,omitempty"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// DecodeBinary returns the bytes of a value sent with Encoding "binary".
func DecodeBinary(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("binary value must be a base64 string, got %T", v)
	}
	return base64.StdEncoding.DecodeString(s)
}
