package idb

import (
	"context"
	"fmt"

	"github.com/aep/cursorkv/kv"
	"github.com/gammazero/deque"
)

type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

type txState int

const (
	txPending txState = iota
	txActive
	txFinished
)

// Transaction executes its requests one per loop turn, in the order they
// were issued. It commits once no request is left after a turn.
//
// Requests may only be issued from the setup function or from an event
// handler of the same transaction.
type Transaction struct {
	db    *Database
	mode  Mode
	scope map[string]bool
	setup func(tx *Transaction)

	state   txState
	r       kv.Read
	w       kv.Write
	queue   deque.Deque[*Request]
	cursors []func()

	onComplete func()
	onError    func(err error)
	onAbort    func(err error)
}

func (tx *Transaction) Mode() Mode { return tx.mode }

func (tx *Transaction) OnComplete(fn func())       { tx.onComplete = fn }
func (tx *Transaction) OnError(fn func(err error)) { tx.onError = fn }
func (tx *Transaction) OnAbort(fn func(err error)) { tx.onAbort = fn }

func (tx *Transaction) ObjectStore(name string) (*ObjectStore, error) {
	if !tx.scope[name] {
		return nil, fmt.Errorf("%w: %s is not in the transaction scope", ErrNotFoundStore, name)
	}
	if tx.state == txFinished {
		return nil, ErrInactive
	}
	return &ObjectStore{tx: tx, name: name, prefix: storePrefix(name)}, nil
}

// view is what requests read through. Readwrite transactions observe their
// own writes.
func (tx *Transaction) view() kv.Read {
	if tx.w != nil {
		return tx.w
	}
	return tx.r
}

func (tx *Transaction) start() {
	if tx.mode == ReadWrite {
		tx.w = tx.db.b.kv.Write()
	} else {
		tx.r = tx.db.b.kv.Read()
	}
	tx.state = txActive
	log.Debug("[idb].Transaction:", "db", tx.db.b.name, "mode", tx.mode.String(), "event", "start")

	if tx.setup != nil {
		tx.setup(tx)
	}
	tx.schedule()
}

func (tx *Transaction) schedule() {
	tx.db.f.loop.post(tx.step)
}

func (tx *Transaction) enqueue(req *Request) error {
	if tx.state != txActive {
		return ErrInactive
	}
	tx.queue.PushBack(req)
	return nil
}

func (tx *Transaction) step() {
	if tx.state != txActive {
		return
	}
	if tx.queue.Len() == 0 {
		tx.commit()
		return
	}

	req := tx.queue.PopFront()
	req.result, req.err = req.exec()
	req.done = true

	if req.err != nil {
		log.Debug("[idb].Request:", "db", tx.db.b.name, "op", req.op, "err", req.err)
		if req.onError != nil {
			req.onError(req.err)
		}
		tx.abort(req.err)
		return
	}
	if req.onSuccess != nil {
		req.onSuccess(req)
	}
	tx.schedule()
}

func (tx *Transaction) commit() {
	tx.state = txFinished
	tx.stopCursors()

	var err error
	if tx.w != nil {
		err = tx.w.Commit(context.Background())
		tx.w.Close()
	} else {
		tx.r.Close()
	}
	log.Debug("[idb].Transaction:", "db", tx.db.b.name, "mode", tx.mode.String(), "event", "commit", "err", err)

	if err != nil {
		if tx.onError != nil {
			tx.onError(err)
		}
		if tx.onAbort != nil {
			tx.onAbort(err)
		}
	} else if tx.onComplete != nil {
		tx.onComplete()
	}
	tx.db.b.finished(tx)
}

// Abort rolls the transaction back. Requests still pending fail with
// ErrAborted, then the abort handler is called with ErrAborted.
func (tx *Transaction) Abort() {
	if tx.state != txActive {
		return
	}
	tx.abort(ErrAborted)
}

func (tx *Transaction) abort(cause error) {
	tx.state = txFinished
	tx.stopCursors()

	if tx.w != nil {
		// closing an uncommitted write rolls it back
		tx.w.Close()
	} else {
		tx.r.Close()
	}
	log.Debug("[idb].Transaction:", "db", tx.db.b.name, "mode", tx.mode.String(), "event", "abort", "err", cause)

	for tx.queue.Len() > 0 {
		req := tx.queue.PopFront()
		req.err = ErrAborted
		req.done = true
		if req.onError != nil {
			req.onError(ErrAborted)
		}
	}
	if tx.onAbort != nil {
		tx.onAbort(cause)
	}
	tx.db.b.finished(tx)
}

func (tx *Transaction) stopCursors() {
	for _, stop := range tx.cursors {
		stop()
	}
	tx.cursors = nil
}
