package idb

import (
	"bytes"
	"context"

	"github.com/aep/cursorkv/kv"
)

// failingOpener wraps engines so that puts of one key, or commits touching
// object store data, fail with err.
type failingOpener struct {
	kv.Opener
	failPut    []byte
	failCommit bool
	err        error
}

func (o *failingOpener) Open(name string) (kv.KV, error) {
	k, err := o.Opener.Open(name)
	if err != nil {
		return nil, err
	}
	return &failingKV{KV: k, o: o}, nil
}

type failingKV struct {
	kv.KV
	o *failingOpener
}

func (k *failingKV) Write() kv.Write {
	return &failingWrite{Write: k.KV.Write(), o: k.o}
}

type failingWrite struct {
	kv.Write
	o       *failingOpener
	touched bool
}

func (w *failingWrite) Put(key []byte, value []byte) error {
	if w.o.failPut != nil && bytes.HasSuffix(key, w.o.failPut) {
		return w.o.err
	}
	if bytes.HasPrefix(key, []byte("s\xff")) {
		w.touched = true
	}
	return w.Write.Put(key, value)
}

func (w *failingWrite) Commit(ctx context.Context) error {
	if w.o.failCommit && w.touched {
		return w.o.err
	}
	return w.Write.Commit(ctx)
}
