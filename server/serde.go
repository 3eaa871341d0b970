package server

import (
	"github.com/aep/cursorkv/level"
)

// renderValue is the JSON form of a value read with NoBuffer: text and
// structured values as they are, bytes as a string.
func renderValue(v level.Value) any {
	if v.Kind() == level.KindBytes {
		return string(v.Bytes())
	}
	return v
}
