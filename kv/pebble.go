package kv

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

type Pebbledb struct {
	db     *pebble.DB
	closed atomic.Bool

	// pebble has no transactions with conflict detection, only batches.
	// writers are serialized here.
	globalWriteLock sync.Mutex
}

type PebbleWrite struct {
	p        *Pebbledb
	batch    *pebble.Batch
	err      error
	commited bool
	locked   bool
	closed   bool
}

func (w *PebbleWrite) lock() {
	if w.closed && w.err == nil {
		w.err = ErrCommitted
	}
	if !w.closed && !w.locked {
		w.p.globalWriteLock.Lock()
		w.locked = true
	}
}

func (w *PebbleWrite) unlock() {
	if w.locked {
		w.locked = false
		w.p.globalWriteLock.Unlock()
	}
}

func (w *PebbleWrite) release() {
	w.unlock()
	if !w.closed {
		w.closed = true
		w.batch.Close()
	}
}

func (w *PebbleWrite) Commit(ctx context.Context) error {
	if w.commited {
		return ErrCommitted
	}
	if w.err != nil {
		w.release()
		return w.err
	}
	err := w.batch.Commit(pebble.Sync)
	w.release()
	if err != nil {
		w.err = err
		return err
	}
	w.commited = true
	return nil
}

func (w *PebbleWrite) Rollback() error {
	if w.commited {
		return ErrCommitted
	}
	w.release()
	return w.err
}

func (w *PebbleWrite) Put(key []byte, value []byte) error {
	w.lock()
	if w.err != nil {
		return w.err
	}
	err := w.batch.Set(key, value, pebble.Sync)
	if err != nil {
		w.err = err
		w.Rollback()
	}
	log.Debug("[pebble].Put:", "key", string(key), "err", err)
	return w.err
}

func (w *PebbleWrite) Get(ctx context.Context, key []byte) ([]byte, error) {
	w.lock()
	if w.err != nil {
		return nil, w.err
	}
	return pebbleGet(w.batch.Get(key))
}

func (w *PebbleWrite) Del(key []byte) error {
	w.lock()
	if w.err != nil {
		return w.err
	}
	err := w.batch.Delete(key, pebble.Sync)
	if err != nil {
		w.err = err
		w.Rollback()
	}
	log.Debug("[pebble].Del:", "key", string(key), "err", err)
	return w.err
}

func (w *PebbleWrite) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	w.lock()
	return func(yield func(KeyAndValue, error) bool) {
		if w.err != nil {
			yield(KeyAndValue{}, w.err)
			return
		}
		it, err := w.batch.NewIter(&pebble.IterOptions{
			LowerBound: start,
			UpperBound: end,
		})
		pebbleIter(it, err, start, end, yield)
	}
}

func (w *PebbleWrite) Close() {
	if !w.commited {
		w.Rollback()
	}
}

type PebbleRead struct {
	snapshot *pebble.Snapshot
}

func (r *PebbleRead) Get(ctx context.Context, key []byte) ([]byte, error) {
	return pebbleGet(r.snapshot.Get(key))
}

func (r *PebbleRead) Close() {
	r.snapshot.Close()
}

func (r *PebbleRead) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return func(yield func(KeyAndValue, error) bool) {
		it, err := r.snapshot.NewIter(&pebble.IterOptions{
			LowerBound: start,
			UpperBound: end,
		})
		pebbleIter(it, err, start, end, yield)
	}
}

func pebbleGet(val []byte, closer interface{ Close() error }, err error) ([]byte, error) {
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Debug("[pebble].Get:", "err", err)
		return nil, err
	}
	defer closer.Close()

	// the closer invalidates val
	return copyBytes(val), nil
}

func pebbleIter(it *pebble.Iterator, err error, start []byte, end []byte, yield func(KeyAndValue, error) bool) {
	if err != nil {
		yield(KeyAndValue{}, err)
		return
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		// key and value are invalidated by iterator movement
		key := copyBytes(it.Key())
		val := copyBytes(it.Value())

		log.Debug("[pebble].Iter:", "start", string(start), "end", string(end), "at", string(key))
		if !yield(KeyAndValue{K: key, V: val}, nil) {
			return
		}
	}

	if err := it.Error(); err != nil {
		log.Debug("[pebble].Iter:", "start", string(start), "end", string(end), "err", err)
		yield(KeyAndValue{}, err)
	}
}

func (p *Pebbledb) Close() {
	if p.closed.CompareAndSwap(false, true) {
		p.db.Close()
	}
}

func (p *Pebbledb) Ping() error {
	if p.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (p *Pebbledb) Write() Write {
	return &PebbleWrite{p: p, batch: p.db.NewIndexedBatch()}
}

func (p *Pebbledb) Read() Read {
	return &PebbleRead{snapshot: p.db.NewSnapshot()}
}

func openPebble(dir string, opts *pebble.Options) (KV, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	return &Pebbledb{db: db}, nil
}

// PebbleOpener stores each named database in its own directory below Dir.
type PebbleOpener struct {
	Dir string
}

func (o *PebbleOpener) Open(name string) (KV, error) {
	return openPebble(filepath.Join(o.Dir, name), &pebble.Options{})
}

func (o *PebbleOpener) Destroy(name string) error {
	return os.RemoveAll(filepath.Join(o.Dir, name))
}

// MemPebbleOpener keeps databases on in-memory filesystems, for testing.
type MemPebbleOpener struct {
	mu  sync.Mutex
	fss map[string]vfs.FS
}

func NewMemPebbleOpener() *MemPebbleOpener {
	return &MemPebbleOpener{fss: make(map[string]vfs.FS)}
}

func (o *MemPebbleOpener) Open(name string) (KV, error) {
	o.mu.Lock()
	fs := o.fss[name]
	if fs == nil {
		fs = vfs.NewMem()
		o.fss[name] = fs
	}
	o.mu.Unlock()

	return openPebble("", &pebble.Options{FS: fs})
}

func (o *MemPebbleOpener) Destroy(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.fss, name)
	return nil
}
