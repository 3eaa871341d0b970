package level

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/aep/cursorkv/idb"
	"github.com/gammazero/deque"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Entry struct {
	Key   Value
	Value Value
}

// Iterator walks a key range through a cursor of one readonly transaction.
// The cursor pushes entries as the object store produces them; Next pulls them
// in the same order. An error is delivered after the entries that arrived
// before it and before those that arrived after it.
//
// Only one call to Next may be outstanding at a time.
type Iterator struct {
	opts IteratorOptions

	mu      sync.Mutex
	entries deque.Deque[*Entry] // nil marks the end
	errs    deque.Deque[queuedErr]
	pushed  uint64
	popped  uint64
	waiter  chan struct{}
	yielded int
	ended   bool // end marker queued
	done    bool // end marker delivered
	closed  bool
}

type queuedErr struct {
	err error
	// number of entries queued before the error
	after uint64
}

// Iterator starts reading the range selected by o. Failures to start, such as
// an invalid range, are delivered by the first Next.
func (s *Store) Iterator(ctx context.Context, o *IteratorOptions) *Iterator {
	if o == nil {
		o = &IteratorOptions{}
	}
	it := &Iterator{opts: *o}

	_, span := tracer.Start(ctx, "level.Store.Iterator", trace.WithAttributes(attribute.Int("limit", o.Limit)))
	defer span.End()

	rng, err := translate(o)
	if err != nil {
		span.RecordError(err)
		it.fail(err)
		return it
	}
	s.log.Debug("[level].Iterator:", "range", rng.String(), "limit", o.Limit)

	db, err := s.conn()
	if err == nil {
		err = db.Transaction([]string{dataStore}, idb.ReadOnly, func(tx *idb.Transaction) {
			tx.OnAbort(func(error) { it.onAbort() })

			st, err := tx.ObjectStore(dataStore)
			if err != nil {
				it.fail(err)
				return
			}
			req, err := st.OpenCursor(rng)
			if err != nil {
				it.fail(err)
				return
			}
			req.OnError(it.onError)
			req.OnSuccess(func(r *idb.Request) { it.onCursor(r.Cursor()) })
		})
	}
	if err != nil {
		span.RecordError(err)
		it.fail(err)
	}
	return it
}

// onCursor handles one cursor position, or the end of the range when c is nil.
func (it *Iterator) onCursor(c *idb.Cursor) {
	it.mu.Lock()
	if it.closed {
		it.mu.Unlock()
		return
	}

	advance := false
	if c == nil {
		it.pushEnd()
	} else {
		o := it.opts.options()
		it.push(&Entry{
			Key:   materializeKey(c.Key(), o),
			Value: materialize(c.Value(), o),
		})
		it.yielded++
		if it.opts.Limit > 0 && it.yielded >= it.opts.Limit {
			it.pushEnd()
		} else {
			advance = true
		}
	}
	it.wake()
	it.mu.Unlock()

	if advance {
		if err := c.Continue(); err != nil {
			it.onError(err)
		}
	}
}

func (it *Iterator) onError(err error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.errs.PushBack(queuedErr{err: err, after: it.pushed})
	it.wake()
}

// fail queues err followed by the end of the iterator.
func (it *Iterator) fail(err error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.errs.PushBack(queuedErr{err: err, after: it.pushed})
	it.pushEnd()
	it.wake()
}

// onAbort ends an iterator whose transaction went away before the range was
// exhausted, so that Next does not wait forever.
func (it *Iterator) onAbort() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.pushEnd()
	it.wake()
}

func (it *Iterator) push(e *Entry) {
	it.entries.PushBack(e)
	it.pushed++
}

func (it *Iterator) pushEnd() {
	if !it.ended {
		it.ended = true
		it.push(nil)
	}
}

// wake resumes a waiting Next. A waiter only registers while both queues are
// empty, so this fires exactly when the first item becomes available.
func (it *Iterator) wake() {
	if it.waiter != nil && it.entries.Len()+it.errs.Len() > 0 {
		close(it.waiter)
		it.waiter = nil
	}
}

// Next returns the next entry, ErrEnd after the last one, or the error the
// object store reported. It waits for the cursor when nothing is buffered.
func (it *Iterator) Next(ctx context.Context) (Entry, error) {
	for {
		it.mu.Lock()
		if it.closed {
			it.mu.Unlock()
			return Entry{}, ErrIteratorClosed
		}
		if it.errs.Len() > 0 && it.errs.Front().after <= it.popped {
			err := it.errs.PopFront().err
			it.mu.Unlock()
			return Entry{}, err
		}
		if it.entries.Len() > 0 {
			e := it.entries.PopFront()
			it.popped++
			if e == nil {
				it.done = true
				it.mu.Unlock()
				return Entry{}, ErrEnd
			}
			it.mu.Unlock()
			return *e, nil
		}
		if it.done {
			it.mu.Unlock()
			return Entry{}, ErrEnd
		}
		if it.waiter != nil {
			it.mu.Unlock()
			return Entry{}, ErrConcurrentNext
		}
		w := make(chan struct{})
		it.waiter = w
		it.mu.Unlock()

		select {
		case <-w:
		case <-ctx.Done():
			it.mu.Lock()
			if it.waiter == w {
				it.waiter = nil
			}
			it.mu.Unlock()
			return Entry{}, ctx.Err()
		}
	}
}

// End releases the iterator. It does not abort the transaction; whatever the
// cursor still produces is dropped.
func (it *Iterator) End(ctx context.Context) error {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.closed = true
	it.entries.Clear()
	it.errs.Clear()
	if it.waiter != nil {
		close(it.waiter)
		it.waiter = nil
	}
	return nil
}

// All yields the remaining entries. Iteration stops after the first error,
// which is yielded. The iterator is ended when All returns.
func (it *Iterator) All(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		defer it.End(ctx)
		for {
			e, err := it.Next(ctx)
			if errors.Is(err, ErrEnd) {
				return
			}
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}
