package level

import (
	"github.com/aep/cursorkv/idb"
)

// IteratorOptions select the entries of an iterator. Unset bounds are the
// zero Value. Bounds compare by their text form.
type IteratorOptions struct {
	Gt, Gte Value
	Lt, Lte Value

	// Limit stops the iterator after that many entries. Zero or less is
	// unlimited.
	Limit int

	Raw      bool
	NoBuffer bool
}

func (o *IteratorOptions) options() *Options {
	return &Options{Raw: o.Raw, NoBuffer: o.NoBuffer}
}

func bound(v Value) []byte {
	return []byte(v.String())
}

// translate picks the key range for the bounds in o. The first matching case
// wins, so an exclusive bound shadows the inclusive one on the same side.
// A nil range is a full scan.
func translate(o *IteratorOptions) (*idb.KeyRange, error) {
	lt, lte := !o.Lt.IsZero(), !o.Lte.IsZero()
	gt, gte := !o.Gt.IsZero(), !o.Gte.IsZero()

	switch {
	case lt && gt:
		return idb.Bound(bound(o.Gt), bound(o.Lt), true, true)
	case lt && gte:
		return idb.Bound(bound(o.Gte), bound(o.Lt), false, true)
	case lte && gt:
		return idb.Bound(bound(o.Gt), bound(o.Lte), true, false)
	case lte && gte:
		return idb.Bound(bound(o.Gte), bound(o.Lte), false, false)
	case lt:
		return idb.UpperBound(bound(o.Lt), true), nil
	case lte:
		return idb.UpperBound(bound(o.Lte), false), nil
	case gt:
		return idb.LowerBound(bound(o.Gt), true), nil
	case gte:
		return idb.LowerBound(bound(o.Gte), false), nil
	}
	return nil, nil
}
