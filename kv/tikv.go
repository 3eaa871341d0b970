package kv

import (
	"bytes"
	"context"
	"fmt"
	"iter"

	pingcaplog "github.com/pingcap/log"

	tikverr "github.com/tikv/client-go/v2/error"
	"github.com/tikv/client-go/v2/txnkv"
	"github.com/tikv/client-go/v2/txnkv/txnsnapshot"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer trace.Tracer

func init() {
	l, p, _ := pingcaplog.InitLogger(&pingcaplog.Config{})

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	l, _ = config.Build()

	pingcaplog.ReplaceGlobals(l, p)

	tracer = otel.Tracer("github.com/aep/cursorkv/kv")
}

// Tikv shares one cluster between databases by prefixing every key with the
// database name.
type Tikv struct {
	k      *txnkv.Client
	prefix []byte
}

type TikvWrite struct {
	t        *Tikv
	txn      *txnkv.KVTxn
	err      error
	commited bool
}

func tikvPrefix(name string) []byte {
	return []byte(fmt.Sprintf("d\xff%s\xff", name))
}

// prefixEnd is the smallest key greater than every key starting with prefix.
func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func (t *Tikv) key(k []byte) []byte {
	return append(bytes.Clone(t.prefix), k...)
}

func (t *Tikv) span(start []byte, end []byte) ([]byte, []byte) {
	s := t.key(start)
	if end == nil {
		return s, prefixEnd(t.prefix)
	}
	return s, t.key(end)
}

func (w *TikvWrite) Commit(ctx context.Context) error {
	if w.err != nil {
		return w.err
	}
	if w.commited {
		return ErrCommitted
	}

	ctx, span := tracer.Start(ctx, "kv.TikvWrite.Commit")
	defer span.End()

	err := w.txn.Commit(ctx)
	if err != nil {
		w.err = err
		return err
	}
	w.commited = true
	return nil
}

func (w *TikvWrite) Rollback() error {
	if w.commited {
		return ErrCommitted
	}
	if w.err != nil {
		return w.err
	}
	return w.txn.Rollback()
}

func (w *TikvWrite) Put(key []byte, value []byte) error {
	if w.err != nil {
		return w.err
	}
	err := w.txn.Set(w.t.key(key), value)
	if err != nil {
		w.Rollback()
		w.err = err
	}
	log.Debug("[tikv].Put:", "key", string(key), "err", err)
	return w.err
}

func (w *TikvWrite) Get(ctx context.Context, key []byte) ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}

	ctx, span := tracer.Start(ctx, "kv.TikvWrite.Get")
	defer span.End()

	b, err := w.txn.Get(ctx, w.t.key(key))
	return tikvGet(key, b, err)
}

func (w *TikvWrite) Del(key []byte) error {
	if w.err != nil {
		return w.err
	}
	err := w.txn.Delete(w.t.key(key))
	if err != nil {
		w.err = err
	}
	return err
}

func (w *TikvWrite) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return func(yield func(KeyAndValue, error) bool) {
		_, span := tracer.Start(ctx, "kv.TikvWrite.Iter")
		defer span.End()

		if w.err != nil {
			yield(KeyAndValue{}, w.err)
			return
		}
		s, e := w.t.span(start, end)
		it, err := w.txn.Iter(s, e)
		tikvIter(w.t, it, err, yield)
	}
}

func (w *TikvWrite) Close() {
	if !w.commited {
		w.Rollback()
	}
}

type TikvRead struct {
	t   *Tikv
	txn *txnsnapshot.KVSnapshot
	err error
}

func (r *TikvRead) Get(ctx context.Context, key []byte) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}

	ctx, span := tracer.Start(ctx, "kv.TikvRead.Get")
	defer span.End()

	b, err := r.txn.Get(ctx, r.t.key(key))
	return tikvGet(key, b, err)
}

func (r *TikvRead) Close() {
}

func (r *TikvRead) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return func(yield func(KeyAndValue, error) bool) {
		_, span := tracer.Start(ctx, "kv.TikvRead.Iter")
		defer span.End()

		if r.err != nil {
			yield(KeyAndValue{}, r.err)
			return
		}
		s, e := r.t.span(start, end)
		it, err := r.txn.Iter(s, e)
		tikvIter(r.t, it, err, yield)
	}
}

func tikvGet(key []byte, b []byte, err error) ([]byte, error) {
	if err != nil {
		if tikverr.IsErrNotFound(err) {
			log.Debug("[tikv].Get:", "key", string(key), "err", "not found")
			return nil, ErrNotFound
		}
		log.Debug("[tikv].Get:", "key", string(key), "err", err)
		return nil, err
	}
	log.Debug("[tikv].Get:", "key", string(key))
	return b, nil
}

type tikvIterator interface {
	Valid() bool
	Key() []byte
	Value() []byte
	Next() error
	Close()
}

func tikvIter(t *Tikv, it tikvIterator, err error, yield func(KeyAndValue, error) bool) {
	if err != nil {
		log.Debug("[tikv].Iter:", "err", err)
		yield(KeyAndValue{}, err)
		return
	}
	defer it.Close()

	for it.Valid() {
		k := bytes.TrimPrefix(it.Key(), t.prefix)
		log.Debug("[tikv].Iter:", "at", string(k))
		if !yield(KeyAndValue{K: copyBytes(k), V: copyBytes(it.Value())}, nil) {
			return
		}

		if err := it.Next(); err != nil {
			log.Debug("[tikv].Iter:", "err", err)
			yield(KeyAndValue{}, err)
			return
		}
	}
}

func (t *Tikv) Close() {
	t.k.Close()
}

func (t *Tikv) Write() Write {
	txn, err := t.k.Begin()
	return &TikvWrite{t: t, txn: txn, err: err}
}

func (t *Tikv) Read() Read {
	ts, err := t.k.CurrentTimestamp("global")
	if err != nil {
		return &TikvRead{t: t, err: err}
	}
	return &TikvRead{t: t, txn: t.k.GetSnapshot(ts)}
}

func (t *Tikv) Ping() error {
	_, err := t.k.CurrentTimestamp("global")
	return err
}

// TikvOpener connects to the placement driver endpoints for every database.
type TikvOpener struct {
	Endpoints []string
}

func (o *TikvOpener) Open(name string) (KV, error) {
	endpoints := o.Endpoints
	if len(endpoints) == 0 {
		endpoints = []string{"127.0.0.1:2379"}
	}
	k, err := txnkv.NewClient(endpoints)
	if err != nil {
		return nil, err
	}
	return &Tikv{k: k, prefix: tikvPrefix(name)}, nil
}

func (o *TikvOpener) Destroy(name string) error {
	db, err := o.Open(name)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	w := db.Write()
	defer w.Close()

	var keys [][]byte
	for kv, err := range w.Iter(ctx, nil, nil) {
		if err != nil {
			return err
		}
		keys = append(keys, kv.K)
	}
	for _, k := range keys {
		if err := w.Del(k); err != nil {
			return err
		}
	}
	return w.Commit(ctx)
}
