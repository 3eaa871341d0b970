package idb

import (
	"context"
	"sync"

	"github.com/aep/cursorkv/kv"
	"github.com/aep/cursorkv/logging"
)

var log = logging.New()

var (
	metaVersion     = []byte("m\xffversion")
	metaStorePrefix = []byte("m\xffstore\xff")
)

// backing is one opened engine, shared by every connection to the same
// database name. Apart from stores it is only touched on the loop.
type backing struct {
	name string
	kv   kv.KV

	mu     sync.RWMutex
	stores map[string]bool

	refs      int
	open      int
	writer    *Transaction
	waiting   []*Transaction
	onRelease []func()
}

func (b *backing) hasStore(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stores[name]
}

func (b *backing) storeNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var names []string
	for n := range b.stores {
		names = append(names, n)
	}
	return names
}

// Factory opens and deletes databases kept in engines from one kv.Opener.
// All events of all databases opened through a Factory are delivered on a
// single goroutine.
type Factory struct {
	opener kv.Opener
	loop   *loop
	dbs    map[string]*backing
	closed sync.Once
}

func NewFactory(opener kv.Opener) *Factory {
	return &Factory{
		opener: opener,
		loop:   newLoop(),
		dbs:    make(map[string]*backing),
	}
}

// Close runs the events already posted, closes every engine still held and
// stops the event loop. Events posted afterwards are dropped. Must not be
// called from an event handler.
func (f *Factory) Close() {
	f.closed.Do(func() {
		done := make(chan struct{})
		f.loop.post(func() {
			for name, b := range f.dbs {
				log.Debug("[idb].Close: closing engine still in use", "db", name, "refs", b.refs)
				b.kv.Close()
				delete(f.dbs, name)
			}
			close(done)
		})
		<-done
		f.loop.stop()
	})
}

// OpenRequest receives the events of one Factory.Open call.
type OpenRequest struct {
	name      string
	onUpgrade func(db *Database) error
	onSuccess func(db *Database)
	onError   func(err error)
}

func (r *OpenRequest) Name() string { return r.name }

// OnUpgradeNeeded is called with a connection in versionchange mode when the
// database has no schema yet. Returning an error fails the open.
func (r *OpenRequest) OnUpgradeNeeded(fn func(db *Database) error) { r.onUpgrade = fn }
func (r *OpenRequest) OnSuccess(fn func(db *Database))             { r.onSuccess = fn }
func (r *OpenRequest) OnError(fn func(err error))                  { r.onError = fn }

// Open opens a connection to the named database. setup runs on the event
// loop before any event is delivered and registers the handlers.
func (f *Factory) Open(name string, setup func(r *OpenRequest)) {
	r := &OpenRequest{name: name}
	f.loop.post(func() {
		if setup != nil {
			setup(r)
		}
		db, err := f.open(r)
		if err != nil {
			log.Debug("[idb].Open:", "name", name, "err", err)
			if r.onError != nil {
				r.onError(err)
			}
			return
		}
		log.Debug("[idb].Open:", "name", name)
		if r.onSuccess != nil {
			r.onSuccess(db)
		}
	})
}

func (f *Factory) open(r *OpenRequest) (*Database, error) {
	b := f.dbs[r.name]
	if b == nil {
		engine, err := f.opener.Open(r.name)
		if err != nil {
			return nil, err
		}
		b = &backing{name: r.name, kv: engine, stores: make(map[string]bool)}
		if err := b.loadSchema(); err != nil {
			engine.Close()
			return nil, err
		}
		f.dbs[r.name] = b
	}
	b.refs++
	b.open++
	db := &Database{f: f, b: b}

	if err := db.upgradeIfNeeded(r.onUpgrade); err != nil {
		db.closing.Store(true)
		b.open--
		f.release(b)
		return nil, err
	}
	return db, nil
}

func (b *backing) loadSchema() error {
	r := b.kv.Read()
	defer r.Close()

	for e, err := range r.Iter(context.Background(), metaStorePrefix, storeEnd(metaStorePrefix)) {
		if err != nil {
			return err
		}
		b.stores[string(e.K[len(metaStorePrefix):])] = true
	}
	return nil
}

// release drops one connection reference and closes the engine with the last.
func (f *Factory) release(b *backing) {
	b.refs--
	if b.refs > 0 {
		return
	}
	b.kv.Close()
	if f.dbs[b.name] == b {
		delete(f.dbs, b.name)
	}
	for _, fn := range b.onRelease {
		fn()
	}
	b.onRelease = nil
}

// DeleteDatabase removes the named database. It fails with ErrBlocked while
// a connection to it is open, and waits for closed connections to finish
// their transactions. Must not be called from an event handler.
func (f *Factory) DeleteDatabase(ctx context.Context, name string) error {
	done := make(chan error, 1)
	f.loop.post(func() {
		destroy := func() {
			err := f.opener.Destroy(name)
			log.Debug("[idb].DeleteDatabase:", "name", name, "err", err)
			done <- err
		}
		b := f.dbs[name]
		if b == nil {
			destroy()
			return
		}
		if b.open > 0 {
			done <- ErrBlocked
			return
		}
		b.onRelease = append(b.onRelease, destroy)
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
