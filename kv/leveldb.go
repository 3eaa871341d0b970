package kv

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB writes through leveldb transactions, which block other writers
// until committed or discarded.
type LevelDB struct {
	db     *leveldb.DB
	closed bool
}

type LevelDBRead struct {
	snap *leveldb.Snapshot
	err  error
}

type LevelDBWrite struct {
	tr       *leveldb.Transaction
	err      error
	commited bool
	done     bool
}

func leveldbOptions() *opt.Options {
	return &opt.Options{
		OpenFilesCacheCapacity: 16,
		BlockCacheCapacity:     16 * 1024 * 1024, // 16MB
		WriteBuffer:            32 * 1024 * 1024, // 32MB
		Filter:                 filter.NewBloomFilter(10),
	}
}

func leveldbGet(key []byte, val []byte, err error) ([]byte, error) {
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			log.Debug("[leveldb].Get:", "key", string(key), "err", "not found")
			return nil, ErrNotFound
		}
		log.Debug("[leveldb].Get:", "key", string(key), "err", err)
		return nil, err
	}
	log.Debug("[leveldb].Get:", "key", string(key))
	return val, nil
}

func leveldbIter(it iterator.Iterator, start []byte, end []byte, yield func(KeyAndValue, error) bool) {
	defer it.Release()

	for it.Next() {
		key := copyBytes(it.Key())
		val := copyBytes(it.Value())

		log.Debug("[leveldb].Iter:", "start", string(start), "end", string(end), "at", string(key))
		if !yield(KeyAndValue{K: key, V: val}, nil) {
			return
		}
	}
	if err := it.Error(); err != nil {
		log.Debug("[leveldb].Iter:", "start", string(start), "end", string(end), "err", err)
		yield(KeyAndValue{}, err)
	}
}

func leveldbRange(start []byte, end []byte) *util.Range {
	if start == nil && end == nil {
		return nil
	}
	return &util.Range{Start: start, Limit: end}
}

func (r *LevelDBRead) Get(ctx context.Context, key []byte) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	val, err := r.snap.Get(key, nil)
	return leveldbGet(key, val, err)
}

func (r *LevelDBRead) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return func(yield func(KeyAndValue, error) bool) {
		if r.err != nil {
			yield(KeyAndValue{}, r.err)
			return
		}
		leveldbIter(r.snap.NewIterator(leveldbRange(start, end), nil), start, end, yield)
	}
}

func (r *LevelDBRead) Close() {
	if r.snap != nil {
		r.snap.Release()
	}
}

func (w *LevelDBWrite) Get(ctx context.Context, key []byte) ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	val, err := w.tr.Get(key, nil)
	return leveldbGet(key, val, err)
}

func (w *LevelDBWrite) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return func(yield func(KeyAndValue, error) bool) {
		if w.err != nil {
			yield(KeyAndValue{}, w.err)
			return
		}
		leveldbIter(w.tr.NewIterator(leveldbRange(start, end), nil), start, end, yield)
	}
}

func (w *LevelDBWrite) Put(key []byte, value []byte) error {
	if w.err != nil {
		return w.err
	}
	if err := w.tr.Put(key, value, nil); err != nil {
		w.Rollback()
		w.err = err
	}
	log.Debug("[leveldb].Put:", "key", string(key), "err", w.err)
	return w.err
}

func (w *LevelDBWrite) Del(key []byte) error {
	if w.err != nil {
		return w.err
	}
	if err := w.tr.Delete(key, nil); err != nil {
		w.Rollback()
		w.err = err
	}
	return w.err
}

func (w *LevelDBWrite) Commit(ctx context.Context) error {
	if w.commited {
		return ErrCommitted
	}
	if w.err != nil {
		return w.err
	}
	w.done = true
	if err := w.tr.Commit(); err != nil {
		w.err = err
		return err
	}
	w.commited = true
	return nil
}

func (w *LevelDBWrite) Rollback() error {
	if w.commited {
		return ErrCommitted
	}
	if !w.done && w.tr != nil {
		w.done = true
		w.tr.Discard()
	}
	return w.err
}

func (w *LevelDBWrite) Close() {
	if !w.commited {
		w.Rollback()
	}
}

func (l *LevelDB) Close() {
	if !l.closed {
		l.closed = true
		l.db.Close()
	}
}

func (l *LevelDB) Ping() error {
	if l.closed {
		return ErrClosed
	}
	return nil
}

func (l *LevelDB) Read() Read {
	snap, err := l.db.GetSnapshot()
	return &LevelDBRead{snap: snap, err: err}
}

func (l *LevelDB) Write() Write {
	tr, err := l.db.OpenTransaction()
	return &LevelDBWrite{tr: tr, err: err, done: err != nil}
}

// LevelDBOpener stores each named database in its own directory below Dir.
// Corrupted databases are recovered on open.
type LevelDBOpener struct {
	Dir string
}

func (o *LevelDBOpener) Open(name string) (KV, error) {
	path := filepath.Join(o.Dir, name)
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, err
	}

	db, err := leveldb.OpenFile(path, leveldbOptions())
	if err != nil {
		if !lerrors.IsCorrupted(err) {
			return nil, err
		}
		log.Warn("[leveldb] recovering corrupted database", "path", path, "err", err)
		db, err = leveldb.RecoverFile(path, leveldbOptions())
		if err != nil {
			return nil, err
		}
	}
	return &LevelDB{db: db}, nil
}

func (o *LevelDBOpener) Destroy(name string) error {
	return os.RemoveAll(filepath.Join(o.Dir, name))
}

// MemLevelDBOpener keeps databases in leveldb memory storage, for testing.
type MemLevelDBOpener struct {
	mu     sync.Mutex
	stores map[string]storage.Storage
}

func NewMemLevelDBOpener() *MemLevelDBOpener {
	return &MemLevelDBOpener{stores: make(map[string]storage.Storage)}
}

func (o *MemLevelDBOpener) Open(name string) (KV, error) {
	o.mu.Lock()
	stor := o.stores[name]
	if stor == nil {
		stor = storage.NewMemStorage()
		o.stores[name] = stor
	}
	o.mu.Unlock()

	db, err := leveldb.Open(stor, leveldbOptions())
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (o *MemLevelDBOpener) Destroy(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if stor := o.stores[name]; stor != nil {
		stor.Close()
		delete(o.stores, name)
	}
	return nil
}
