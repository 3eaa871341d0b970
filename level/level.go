package level

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aep/cursorkv/idb"
	"github.com/aep/cursorkv/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var log = logging.New()

var tracer = otel.Tracer("github.com/aep/cursorkv/level")

// DefaultStorePrefix is prepended to the location to name the database.
const DefaultStorePrefix = "IDBWrapper-"

const dataStore = "data"

// Store is an ordered key value store kept in one object store of an idb
// database.
type Store struct {
	location string
	prefix   string
	factory  *idb.Factory
	log      *slog.Logger

	mu sync.Mutex
	db *idb.Database
}

type Option func(*Store)

func WithFactory(f *idb.Factory) Option {
	return func(s *Store) { s.factory = f }
}

func WithStorePrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func New(location string, opts ...Option) (*Store, error) {
	if location == "" {
		return nil, ErrLocationRequired
	}
	s := &Store{
		location: location,
		prefix:   DefaultStorePrefix,
		log:      log,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Location() string { return s.location }

// Name is the database name the store opens and Destroy removes.
func (s *Store) Name() string { return s.prefix + s.location }

// Open opens the database, creating the data object store on first use.
func (s *Store) Open(ctx context.Context) error {
	if s.factory == nil {
		return ErrNoFactory
	}

	done := make(chan error, 1)
	s.factory.Open(s.Name(), func(r *idb.OpenRequest) {
		r.OnUpgradeNeeded(func(db *idb.Database) error {
			s.log.Debug("[level].Open: creating object store", "name", s.Name(), "store", dataStore)
			return db.CreateObjectStore(dataStore)
		})
		r.OnSuccess(func(db *idb.Database) {
			s.mu.Lock()
			s.db = db
			s.mu.Unlock()
			done <- nil
		})
		r.OnError(func(err error) { done <- err })
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()

	if db != nil {
		db.Close()
	}
	return nil
}

// Ping reports whether the store is open and its engine reachable.
func (s *Store) Ping() error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.Ping()
}

func (s *Store) conn() (*idb.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotOpen
	}
	return s.db, nil
}

// transact runs setup in one transaction on the data object store and waits
// for it to complete. The first failure reported by the transaction or by
// setup is returned.
func (s *Store) transact(ctx context.Context, mode idb.Mode, setup func(st *idb.ObjectStore) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	err = db.Transaction([]string{dataStore}, mode, func(tx *idb.Transaction) {
		tx.OnComplete(func() { finish(nil) })
		tx.OnError(finish)
		tx.OnAbort(finish)

		st, err := tx.ObjectStore(dataStore)
		if err == nil {
			err = setup(st)
		}
		if err != nil {
			finish(err)
			tx.Abort()
		}
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Get returns ErrNotFound for a missing key.
func (s *Store) Get(ctx context.Context, key []byte, o *Options) (value Value, err error) {
	ctx, span := tracer.Start(ctx, "level.Store.Get", trace.WithAttributes(attribute.String("key", string(key))))
	defer func() { endSpan(span, err) }()

	if len(key) == 0 {
		return Value{}, ErrInvalidKey
	}

	var native any
	err = s.transact(ctx, idb.ReadOnly, func(st *idb.ObjectStore) error {
		req, err := st.Get(key)
		if err != nil {
			return err
		}
		req.OnSuccess(func(r *idb.Request) { native = r.Result() })
		return nil
	})
	s.log.Debug("[level].Get:", "key", string(key), "err", err)
	if err != nil {
		return Value{}, err
	}
	if native == nil {
		return Value{}, ErrNotFound
	}
	return materialize(native, o), nil
}

func (s *Store) Put(ctx context.Context, key []byte, value Value, o *Options) (err error) {
	ctx, span := tracer.Start(ctx, "level.Store.Put", trace.WithAttributes(attribute.String("key", string(key))))
	defer func() { endSpan(span, err) }()

	if len(key) == 0 {
		return ErrInvalidKey
	}
	if !value.storable() {
		return ErrInvalidValue
	}

	key, value = normalize(key, value, o)
	err = s.transact(ctx, idb.ReadWrite, func(st *idb.ObjectStore) error {
		_, err := st.Put(key, value.Native())
		return err
	})
	s.log.Debug("[level].Put:", "key", string(key), "kind", value.Kind().String(), "err", err)
	return err
}

func (s *Store) Delete(ctx context.Context, key []byte, o *Options) (err error) {
	ctx, span := tracer.Start(ctx, "level.Store.Delete", trace.WithAttributes(attribute.String("key", string(key))))
	defer func() { endSpan(span, err) }()

	if len(key) == 0 {
		return ErrInvalidKey
	}

	err = s.transact(ctx, idb.ReadWrite, func(st *idb.ObjectStore) error {
		_, err := st.Delete(key)
		return err
	})
	s.log.Debug("[level].Delete:", "key", string(key), "err", err)
	return err
}

// ApproximateSize is not supported by the object store.
func (s *Store) ApproximateSize(ctx context.Context, start, end []byte) (uint64, error) {
	return 0, ErrNotImplemented
}
