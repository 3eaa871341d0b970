package rql

import (
	"github.com/aep/cursorkv/level"
)

// successor is the smallest string above every string starting with prefix,
// or "" when there is none.
func successor(prefix string) string {
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return string(end[:i+1])
		}
	}
	return ""
}

// IteratorOptions converts the query for level.Store.Iterator. A prefix
// becomes key >= prefix and key < successor(prefix).
func (q *Query) IteratorOptions() *level.IteratorOptions {
	o := &level.IteratorOptions{
		Limit:    q.Limit,
		Raw:      q.Raw,
		NoBuffer: q.NoBuffer,
	}
	if q.Prefix != nil && *q.Prefix != "" {
		o.Gte = level.Text(*q.Prefix)
		if end := successor(*q.Prefix); end != "" {
			o.Lt = level.Text(end)
		}
	}
	if q.Gt != nil {
		o.Gt = level.Text(*q.Gt)
	}
	if q.Gte != nil {
		o.Gte = level.Text(*q.Gte)
	}
	if q.Lt != nil {
		o.Lt = level.Text(*q.Lt)
	}
	if q.Lte != nil {
		o.Lte = level.Text(*q.Lte)
	}
	return o
}
