package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/rosedblabs/rosedb/v2"
)

// RoseDB buffers writes in an overlay and applies them as one rosedb batch on
// commit. rosedb holds its database lock for the lifetime of a batch and an
// iterator, so neither outlives a single call here.
type RoseDB struct {
	db     *rosedb.DB
	closed bool
}

type RoseRead struct {
	r *RoseDB
}

type RoseWrite struct {
	r        *RoseDB
	ov       *overlay
	commited bool
	done     bool
}

func (r *RoseRead) Get(ctx context.Context, key []byte) ([]byte, error) {
	value, err := r.r.db.Get(key)
	if errors.Is(err, rosedb.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value from rosedb: %w", err)
	}
	return value, nil
}

// scan collects [start, end) in one pass.
func (r *RoseRead) scan(start []byte, end []byte) ([]KeyAndValue, error) {
	opts := rosedb.DefaultIteratorOptions
	it := r.r.db.NewIterator(opts)
	defer it.Close()

	var out []KeyAndValue
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		if item == nil {
			continue
		}
		if start != nil && bytes.Compare(item.Key, start) < 0 {
			continue
		}
		if end != nil && bytes.Compare(item.Key, end) >= 0 {
			break
		}
		out = append(out, KeyAndValue{K: copyBytes(item.Key), V: copyBytes(item.Value)})
	}
	return out, it.Err()
}

func (r *RoseRead) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return func(yield func(KeyAndValue, error) bool) {
		kvs, err := r.scan(start, end)
		for _, kv := range kvs {
			log.Debug("[rosedb].Iter:", "start", string(start), "end", string(end), "at", string(kv.K))
			if !yield(kv, nil) {
				return
			}
		}
		if err != nil {
			yield(KeyAndValue{}, err)
		}
	}
}

func (r *RoseRead) Close() {
}

func (w *RoseWrite) Get(ctx context.Context, key []byte) ([]byte, error) {
	return w.ov.get(ctx, key)
}

func (w *RoseWrite) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return w.ov.iter(ctx, start, end)
}

func (w *RoseWrite) Put(key []byte, value []byte) error {
	if w.done {
		return ErrCommitted
	}
	w.ov.put(key, value)
	log.Debug("[rosedb].Put:", "key", string(key))
	return nil
}

func (w *RoseWrite) Del(key []byte) error {
	if w.done {
		return ErrCommitted
	}
	w.ov.del(key)
	return nil
}

func (w *RoseWrite) Commit(ctx context.Context) error {
	if w.commited {
		return ErrCommitted
	}
	w.done = true
	if w.ov.len() == 0 {
		w.commited = true
		return nil
	}

	batch := w.r.db.NewBatch(rosedb.DefaultBatchOptions)
	err := w.ov.each(func(key []byte, p pending) error {
		if p.deleted {
			return batch.Delete(key)
		}
		return batch.Put(key, p.value)
	})
	if err != nil {
		batch.Rollback()
		return fmt.Errorf("failed to stage rosedb batch: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("failed to commit rosedb batch: %w", err)
	}
	w.commited = true
	return nil
}

func (w *RoseWrite) Rollback() error {
	if w.commited {
		return ErrCommitted
	}
	w.done = true
	return nil
}

func (w *RoseWrite) Close() {
	if !w.done {
		w.Rollback()
	}
}

func (r *RoseDB) Close() {
	if !r.closed {
		r.closed = true
		r.db.Close()
	}
}

func (r *RoseDB) Ping() error {
	if r.closed {
		return ErrClosed
	}
	return nil
}

func (r *RoseDB) Read() Read {
	return &RoseRead{r: r}
}

func (r *RoseDB) Write() Write {
	return &RoseWrite{r: r, ov: newOverlay(&RoseRead{r: r})}
}

// RoseDBOpener stores each named database in its own directory below Dir.
type RoseDBOpener struct {
	Dir string
}

func (o *RoseDBOpener) Open(name string) (KV, error) {
	options := rosedb.DefaultOptions
	options.DirPath = filepath.Join(o.Dir, name)
	db, err := rosedb.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open rosedb: %w", err)
	}
	return &RoseDB{db: db}, nil
}

func (o *RoseDBOpener) Destroy(name string) error {
	return os.RemoveAll(filepath.Join(o.Dir, name))
}
