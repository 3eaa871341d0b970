package idb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/aep/cursorkv/kv"
)

// Database is one connection to a named database.
type Database struct {
	f *Factory
	b *backing

	closing atomic.Bool
	active  atomic.Int32

	// loop only
	released bool
	upgrade  kv.Write
}

func (db *Database) Name() string {
	return db.b.name
}

func (db *Database) ObjectStoreNames() []string {
	names := db.b.storeNames()
	sort.Strings(names)
	return names
}

func (db *Database) upgradeIfNeeded(fn func(db *Database) error) error {
	r := db.b.kv.Read()
	_, err := r.Get(context.Background(), metaVersion)
	r.Close()
	if err == nil {
		return nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return err
	}

	w := db.b.kv.Write()
	defer w.Close()

	db.upgrade = w
	defer func() { db.upgrade = nil }()

	if fn != nil {
		log.Debug("[idb].Open:", "name", db.b.name, "event", "upgradeneeded")
		if err := fn(db); err != nil {
			w.Rollback()
			db.b.loadSchemaReset()
			return err
		}
	}
	if err := w.Put(metaVersion, []byte("1")); err != nil {
		db.b.loadSchemaReset()
		return err
	}
	if err := w.Commit(context.Background()); err != nil {
		db.b.loadSchemaReset()
		return err
	}
	return nil
}

// loadSchemaReset reloads the store list after a failed upgrade.
func (b *backing) loadSchemaReset() {
	b.mu.Lock()
	b.stores = make(map[string]bool)
	b.mu.Unlock()
	if err := b.loadSchema(); err != nil {
		log.Warn("[idb] failed to reload schema", "name", b.name, "err", err)
	}
}

// CreateObjectStore is only valid inside an upgradeneeded handler.
func (db *Database) CreateObjectStore(name string) error {
	if db.upgrade == nil {
		return fmt.Errorf("%w: not in a versionchange transaction", ErrInvalidState)
	}
	if name == "" || bytes.IndexByte([]byte(name), 0xff) >= 0 {
		return fmt.Errorf("%w: invalid object store name %q", ErrData, name)
	}
	if db.b.hasStore(name) {
		return fmt.Errorf("%w: %s", ErrConstraint, name)
	}
	if err := db.upgrade.Put(append(bytes.Clone(metaStorePrefix), name...), []byte("1")); err != nil {
		return err
	}

	db.b.mu.Lock()
	db.b.stores[name] = true
	db.b.mu.Unlock()
	return nil
}

// Transaction starts a transaction over the named object stores. setup runs on
// the event loop once the transaction is active; it is the place to issue
// requests and register handlers. Readwrite transactions on one database run
// one at a time, in the order they were created.
func (db *Database) Transaction(stores []string, mode Mode, setup func(tx *Transaction)) error {
	// counted before the closing check so a concurrent Close waits for it
	db.active.Add(1)
	if db.closing.Load() {
		db.active.Add(-1)
		return ErrClosed
	}
	if len(stores) == 0 {
		db.active.Add(-1)
		return fmt.Errorf("%w: no object stores given", ErrInvalidState)
	}
	scope := make(map[string]bool, len(stores))
	for _, s := range stores {
		if !db.b.hasStore(s) {
			db.active.Add(-1)
			return fmt.Errorf("%w: %s", ErrNotFoundStore, s)
		}
		scope[s] = true
	}

	tx := &Transaction{db: db, mode: mode, scope: scope, setup: setup}
	db.f.loop.post(func() {
		db.b.schedule(tx)
	})
	return nil
}

func (b *backing) schedule(tx *Transaction) {
	if tx.mode == ReadWrite {
		if b.writer != nil {
			b.waiting = append(b.waiting, tx)
			return
		}
		b.writer = tx
	}
	tx.start()
}

// finished is called on the loop when tx completed or aborted.
func (b *backing) finished(tx *Transaction) {
	if b.writer == tx {
		b.writer = nil
		if len(b.waiting) > 0 {
			next := b.waiting[0]
			b.waiting = b.waiting[1:]
			b.writer = next
			tx.db.f.loop.post(next.start)
		}
	}
	tx.db.active.Add(-1)
	tx.db.maybeRelease()
}

// Close closes the connection once its transactions finished. New
// transactions fail with ErrClosed immediately.
func (db *Database) Close() {
	if !db.closing.CompareAndSwap(false, true) {
		return
	}
	db.f.loop.post(func() {
		db.b.open--
		db.maybeRelease()
	})
}

func (db *Database) maybeRelease() {
	if db.released || !db.closing.Load() || db.active.Load() > 0 {
		return
	}
	db.released = true
	db.f.release(db.b)
}

// Ping reports whether the underlying engine is reachable.
func (db *Database) Ping() error {
	if db.closing.Load() {
		return ErrClosed
	}
	return db.b.kv.Ping()
}
