package kv

import (
	"bytes"
	"context"
	"iter"
	"sync"

	"github.com/huandu/skiplist"
)

type skiplistTable struct {
	mu   sync.RWMutex
	list *skiplist.SkipList
}

// Skiplist is an in-memory engine. Reads are not isolated from commits that
// land while they are in progress.
type Skiplist struct {
	t      *skiplistTable
	closed bool
}

type SkiplistRead struct {
	s *Skiplist
}

type SkiplistWrite struct {
	s        *Skiplist
	ov       *overlay
	commited bool
	done     bool
}

func (r *SkiplistRead) Get(ctx context.Context, key []byte) ([]byte, error) {
	r.s.t.mu.RLock()
	defer r.s.t.mu.RUnlock()

	v, ok := r.s.t.list.GetValue(key)
	if !ok {
		log.Debug("[skiplist].Get:", "key", string(key), "err", "not found")
		return nil, ErrNotFound
	}
	log.Debug("[skiplist].Get:", "key", string(key))
	return copyBytes(v.([]byte)), nil
}

// step returns the first entry at or after from that is below end.
func (r *SkiplistRead) step(from []byte, end []byte) (KeyAndValue, bool) {
	r.s.t.mu.RLock()
	defer r.s.t.mu.RUnlock()

	var el *skiplist.Element
	if from == nil {
		el = r.s.t.list.Front()
	} else {
		el = r.s.t.list.Find(from)
	}
	if el == nil {
		return KeyAndValue{}, false
	}
	k := el.Key().([]byte)
	if end != nil && bytes.Compare(k, end) >= 0 {
		return KeyAndValue{}, false
	}
	return KeyAndValue{K: copyBytes(k), V: copyBytes(el.Value.([]byte))}, true
}

func (r *SkiplistRead) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return func(yield func(KeyAndValue, error) bool) {
		from := start
		for {
			kv, ok := r.step(from, end)
			if !ok {
				return
			}
			log.Debug("[skiplist].Iter:", "start", string(start), "end", string(end), "at", string(kv.K))
			if !yield(kv, nil) {
				return
			}
			// smallest key strictly greater than kv.K
			from = append(copyBytes(kv.K), 0x00)
		}
	}
}

func (r *SkiplistRead) Close() {
}

func (w *SkiplistWrite) Get(ctx context.Context, key []byte) ([]byte, error) {
	return w.ov.get(ctx, key)
}

func (w *SkiplistWrite) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return w.ov.iter(ctx, start, end)
}

func (w *SkiplistWrite) Put(key []byte, value []byte) error {
	if w.done {
		return ErrCommitted
	}
	w.ov.put(key, value)
	log.Debug("[skiplist].Put:", "key", string(key))
	return nil
}

func (w *SkiplistWrite) Del(key []byte) error {
	if w.done {
		return ErrCommitted
	}
	w.ov.del(key)
	return nil
}

func (w *SkiplistWrite) Commit(ctx context.Context) error {
	if w.commited {
		return ErrCommitted
	}
	if w.s.closed {
		return ErrClosed
	}

	w.s.t.mu.Lock()
	defer w.s.t.mu.Unlock()

	w.ov.each(func(key []byte, p pending) error {
		if p.deleted {
			w.s.t.list.Remove(key)
		} else {
			w.s.t.list.Set(key, p.value)
		}
		return nil
	})
	w.commited = true
	w.done = true
	return nil
}

func (w *SkiplistWrite) Rollback() error {
	if w.commited {
		return ErrCommitted
	}
	w.done = true
	return nil
}

func (w *SkiplistWrite) Close() {
	if !w.done {
		w.Rollback()
	}
}

func (s *Skiplist) Close() {
	s.closed = true
}

func (s *Skiplist) Ping() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Skiplist) Read() Read {
	return &SkiplistRead{s: s}
}

func (s *Skiplist) Write() Write {
	return &SkiplistWrite{s: s, ov: newOverlay(&SkiplistRead{s: s})}
}

// SkiplistOpener keeps every named database in memory for the lifetime of the
// opener, so a database can be closed and opened again.
type SkiplistOpener struct {
	mu     sync.Mutex
	tables map[string]*skiplistTable
}

func NewSkiplistOpener() *SkiplistOpener {
	return &SkiplistOpener{tables: make(map[string]*skiplistTable)}
}

func (o *SkiplistOpener) Open(name string) (KV, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	t := o.tables[name]
	if t == nil {
		t = &skiplistTable{list: skiplist.New(skiplist.Bytes)}
		o.tables[name] = t
	}
	return &Skiplist{t: t}, nil
}

func (o *SkiplistOpener) Destroy(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.tables, name)
	return nil
}
