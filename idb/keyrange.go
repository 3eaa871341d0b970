package idb

import (
	"bytes"
	"fmt"
)

// KeyRange is a continuous interval of keys. A missing bound is unbounded.
type KeyRange struct {
	lower     []byte
	upper     []byte
	hasLower  bool
	hasUpper  bool
	lowerOpen bool
	upperOpen bool
}

// Bound returns the range between lower and upper. It fails with ErrData if
// lower is greater than upper, or if they are equal and either end is open.
func Bound(lower, upper []byte, lowerOpen, upperOpen bool) (*KeyRange, error) {
	c := bytes.Compare(lower, upper)
	if c > 0 || (c == 0 && (lowerOpen || upperOpen)) {
		return nil, fmt.Errorf("%w: lower bound %q is above upper bound %q", ErrData, lower, upper)
	}
	return &KeyRange{
		lower:     bytes.Clone(lower),
		upper:     bytes.Clone(upper),
		hasLower:  true,
		hasUpper:  true,
		lowerOpen: lowerOpen,
		upperOpen: upperOpen,
	}, nil
}

func UpperBound(upper []byte, open bool) *KeyRange {
	return &KeyRange{upper: bytes.Clone(upper), hasUpper: true, upperOpen: open}
}

func LowerBound(lower []byte, open bool) *KeyRange {
	return &KeyRange{lower: bytes.Clone(lower), hasLower: true, lowerOpen: open}
}

func Only(key []byte) *KeyRange {
	r, _ := Bound(key, key, false, false)
	return r
}

func (r *KeyRange) Lower() ([]byte, bool) { return r.lower, r.hasLower }
func (r *KeyRange) Upper() ([]byte, bool) { return r.upper, r.hasUpper }
func (r *KeyRange) LowerOpen() bool       { return r.lowerOpen }
func (r *KeyRange) UpperOpen() bool       { return r.upperOpen }

func (r *KeyRange) Includes(key []byte) bool {
	if r == nil {
		return true
	}
	if r.hasLower {
		c := bytes.Compare(key, r.lower)
		if c < 0 || (c == 0 && r.lowerOpen) {
			return false
		}
	}
	if r.hasUpper {
		c := bytes.Compare(key, r.upper)
		if c > 0 || (c == 0 && r.upperOpen) {
			return false
		}
	}
	return true
}

// span converts the range into the half open [start, end) interval the
// engines iterate. nil means unbounded.
func (r *KeyRange) span() ([]byte, []byte) {
	if r == nil {
		return nil, nil
	}
	var start, end []byte
	if r.hasLower {
		start = bytes.Clone(r.lower)
		if r.lowerOpen {
			start = append(start, 0x00)
		}
	}
	if r.hasUpper {
		end = bytes.Clone(r.upper)
		if !r.upperOpen {
			end = append(end, 0x00)
		}
	}
	return start, end
}

func (r *KeyRange) String() string {
	if r == nil {
		return "(-inf, +inf)"
	}
	lb, lv, ub, uv := "[", "-inf", "]", "+inf"
	if r.hasLower {
		lv = fmt.Sprintf("%q", r.lower)
		if r.lowerOpen {
			lb = "("
		}
	} else {
		lb = "("
	}
	if r.hasUpper {
		uv = fmt.Sprintf("%q", r.upper)
		if r.upperOpen {
			ub = ")"
		}
	} else {
		ub = ")"
	}
	return lb + lv + ", " + uv + ub
}
