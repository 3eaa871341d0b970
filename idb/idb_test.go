package idb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aep/cursorkv/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func openDB(t *testing.T, f *Factory, name string, stores ...string) *Database {
	t.Helper()

	type result struct {
		db  *Database
		err error
	}
	done := make(chan result, 1)
	f.Open(name, func(r *OpenRequest) {
		r.OnUpgradeNeeded(func(db *Database) error {
			for _, s := range stores {
				if err := db.CreateObjectStore(s); err != nil {
					return err
				}
			}
			return nil
		})
		r.OnSuccess(func(db *Database) { done <- result{db: db} })
		r.OnError(func(err error) { done <- result{err: err} })
	})

	select {
	case res := <-done:
		require.NoError(t, res.err)
		return res.db
	case <-time.After(5 * time.Second):
		t.Fatal("open timed out")
		return nil
	}
}

// run executes setup in a transaction and waits until it completed or aborted.
func run(t *testing.T, db *Database, mode Mode, setup func(tx *Transaction, s *ObjectStore)) error {
	t.Helper()

	done := make(chan error, 1)
	err := db.Transaction([]string{"data"}, mode, func(tx *Transaction) {
		tx.OnComplete(func() { done <- nil })
		tx.OnAbort(func(err error) { done <- err })
		s, err := tx.ObjectStore("data")
		require.NoError(t, err)
		setup(tx, s)
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("transaction timed out")
		return nil
	}
}

func putAll(t *testing.T, db *Database, pairs ...string) {
	t.Helper()
	err := run(t, db, ReadWrite, func(tx *Transaction, s *ObjectStore) {
		for i := 0; i < len(pairs); i += 2 {
			_, err := s.Put([]byte(pairs[i]), pairs[i+1])
			require.NoError(t, err)
		}
	})
	require.NoError(t, err)
}

func get(t *testing.T, db *Database, key string) any {
	t.Helper()
	var value any
	err := run(t, db, ReadOnly, func(tx *Transaction, s *ObjectStore) {
		req, err := s.Get([]byte(key))
		require.NoError(t, err)
		req.OnSuccess(func(r *Request) { value = r.Result() })
	})
	require.NoError(t, err)
	return value
}

func scan(t *testing.T, db *Database, rng *KeyRange) []string {
	t.Helper()
	var keys []string
	err := run(t, db, ReadOnly, func(tx *Transaction, s *ObjectStore) {
		req, err := s.OpenCursor(rng)
		require.NoError(t, err)
		req.OnSuccess(func(r *Request) {
			c := r.Cursor()
			if c == nil {
				return
			}
			keys = append(keys, string(c.Key()))
			require.NoError(t, c.Continue())
		})
	})
	require.NoError(t, err)
	return keys
}

func TestOpenRunsUpgradeOnce(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	upgrades := atomic.NewInt32(0)
	open := func() *Database {
		done := make(chan *Database, 1)
		f.Open("upgrade", func(r *OpenRequest) {
			r.OnUpgradeNeeded(func(db *Database) error {
				upgrades.Inc()
				return db.CreateObjectStore("data")
			})
			r.OnSuccess(func(db *Database) { done <- db })
			r.OnError(func(err error) { t.Error(err); close(done) })
		})
		return <-done
	}

	db := open()
	require.NotNil(t, db)
	assert.Equal(t, []string{"data"}, db.ObjectStoreNames())
	db.Close()

	db = open()
	require.NotNil(t, db)
	defer db.Close()
	assert.Equal(t, []string{"data"}, db.ObjectStoreNames())
	assert.Equal(t, int32(1), upgrades.Load())
}

func TestOpenUpgradeFailure(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	boom := errors.New("boom")
	done := make(chan error, 1)
	f.Open("fail", func(r *OpenRequest) {
		r.OnUpgradeNeeded(func(db *Database) error {
			assert.NoError(t, db.CreateObjectStore("data"))
			return boom
		})
		r.OnSuccess(func(db *Database) { done <- nil })
		r.OnError(func(err error) { done <- err })
	})
	assert.ErrorIs(t, <-done, boom)

	db := openDB(t, f, "fail", "other")
	defer db.Close()
	assert.Equal(t, []string{"other"}, db.ObjectStoreNames())
}

func TestCreateObjectStoreOutsideUpgrade(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	db := openDB(t, f, "outside", "data")
	defer db.Close()
	assert.ErrorIs(t, db.CreateObjectStore("more"), ErrInvalidState)
}

func TestPutGet(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	db := openDB(t, f, "putget", "data")
	defer db.Close()

	err := run(t, db, ReadWrite, func(tx *Transaction, s *ObjectStore) {
		_, err := s.Put([]byte("b"), []byte{1, 2})
		require.NoError(t, err)
		_, err = s.Put([]byte("s"), "text")
		require.NoError(t, err)
		_, err = s.Put([]byte("j"), map[string]any{"n": 1})
		require.NoError(t, err)
	})
	require.NoError(t, err)

	assert.Equal(t, []byte{1, 2}, get(t, db, "b"))
	assert.Equal(t, "text", get(t, db, "s"))
	assert.Equal(t, map[string]any{"n": json.Number("1")}, get(t, db, "j"))
	assert.Nil(t, get(t, db, "missing"))
}

func TestPutRejectsNil(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	db := openDB(t, f, "nil", "data")
	defer db.Close()

	err := run(t, db, ReadWrite, func(tx *Transaction, s *ObjectStore) {
		_, err := s.Put([]byte("k"), nil)
		assert.ErrorIs(t, err, ErrData)
	})
	require.NoError(t, err)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	db := openDB(t, f, "ro", "data")
	defer db.Close()

	err := run(t, db, ReadOnly, func(tx *Transaction, s *ObjectStore) {
		_, err := s.Put([]byte("k"), "v")
		assert.ErrorIs(t, err, ErrReadOnly)
		_, err = s.Delete([]byte("k"))
		assert.ErrorIs(t, err, ErrReadOnly)
	})
	require.NoError(t, err)
}

func TestTransactionUnknownStore(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	db := openDB(t, f, "unknown", "data")
	defer db.Close()

	err := db.Transaction([]string{"nope"}, ReadOnly, nil)
	assert.ErrorIs(t, err, ErrNotFoundStore)
}

func TestAbortRollsBack(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	db := openDB(t, f, "abort", "data")
	defer db.Close()

	putAll(t, db, "a", "1")

	err := run(t, db, ReadWrite, func(tx *Transaction, s *ObjectStore) {
		_, err := s.Put([]byte("a"), "2")
		require.NoError(t, err)
		req, err := s.Put([]byte("b"), "2")
		require.NoError(t, err)
		req.OnSuccess(func(r *Request) { tx.Abort() })
	})
	assert.ErrorIs(t, err, ErrAborted)

	assert.Equal(t, "1", get(t, db, "a"))
	assert.Nil(t, get(t, db, "b"))
}

func TestAbortFailsPendingRequests(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	db := openDB(t, f, "pending", "data")
	defer db.Close()

	var pendingErr error
	err := run(t, db, ReadWrite, func(tx *Transaction, s *ObjectStore) {
		first, err := s.Put([]byte("a"), "1")
		require.NoError(t, err)
		second, err := s.Put([]byte("b"), "1")
		require.NoError(t, err)

		first.OnSuccess(func(r *Request) { tx.Abort() })
		second.OnSuccess(func(r *Request) { t.Error("second request must not succeed") })
		second.OnError(func(err error) { pendingErr = err })
	})
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, pendingErr, ErrAborted)
}

func TestRequestFailureAbortsTransaction(t *testing.T) {
	boom := errors.New("boom")
	f := NewFactory(&failingOpener{Opener: kv.NewSkiplistOpener(), failPut: []byte("bad"), err: boom})
	defer f.Close()

	db := openDB(t, f, "failing", "data")
	defer db.Close()

	var reqErr error
	err := run(t, db, ReadWrite, func(tx *Transaction, s *ObjectStore) {
		_, err := s.Put([]byte("good"), "1")
		require.NoError(t, err)
		req, err := s.Put([]byte("bad"), "1")
		require.NoError(t, err)
		req.OnError(func(err error) { reqErr = err })
	})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, reqErr, boom)
	assert.Nil(t, get(t, db, "good"))
}

func TestCommitFailureFiresError(t *testing.T) {
	boom := errors.New("commit failed")
	f := NewFactory(&failingOpener{Opener: kv.NewSkiplistOpener(), failCommit: true, err: boom})
	defer f.Close()

	db := openDB(t, f, "commit", "data")
	defer db.Close()

	txErr := make(chan error, 1)
	err := run(t, db, ReadWrite, func(tx *Transaction, s *ObjectStore) {
		tx.OnError(func(err error) { txErr <- err })
		_, err := s.Put([]byte("a"), "1")
		require.NoError(t, err)
	})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, <-txErr, boom)
	assert.Nil(t, get(t, db, "a"))
}

func TestRequestsAfterCompleteAreInactive(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	db := openDB(t, f, "inactive", "data")
	defer db.Close()

	var kept *ObjectStore
	err := run(t, db, ReadOnly, func(tx *Transaction, s *ObjectStore) { kept = s })
	require.NoError(t, err)

	_, err = kept.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrInactive)
}

func TestCursorRanges(t *testing.T) {
	openers := []struct {
		name   string
		opener kv.Opener
	}{
		{"skiplist", kv.NewSkiplistOpener()},
		{"pebble-mem", kv.NewMemPebbleOpener()},
		{"leveldb-mem", kv.NewMemLevelDBOpener()},
	}

	mustBound := func(lower, upper string, lo, uo bool) *KeyRange {
		r, err := Bound([]byte(lower), []byte(upper), lo, uo)
		require.NoError(t, err)
		return r
	}

	for _, o := range openers {
		t.Run(o.name, func(t *testing.T) {
			f := NewFactory(o.opener)
			defer f.Close()

			db := openDB(t, f, "cursor", "data", "other")
			defer db.Close()

			putAll(t, db, "a", "1", "b", "2", "c", "3", "d", "4", "e", "5")

			tests := []struct {
				name string
				rng  *KeyRange
				want []string
			}{
				{"all", nil, []string{"a", "b", "c", "d", "e"}},
				{"gte b lt d", mustBound("b", "d", false, true), []string{"b", "c"}},
				{"gt b lte d", mustBound("b", "d", true, false), []string{"c", "d"}},
				{"gt b lt d", mustBound("b", "d", true, true), []string{"c"}},
				{"gte b lte d", mustBound("b", "d", false, false), []string{"b", "c", "d"}},
				{"lt c", UpperBound([]byte("c"), true), []string{"a", "b"}},
				{"lte c", UpperBound([]byte("c"), false), []string{"a", "b", "c"}},
				{"gt c", LowerBound([]byte("c"), true), []string{"d", "e"}},
				{"gte c", LowerBound([]byte("c"), false), []string{"c", "d", "e"}},
				{"only", Only([]byte("d")), []string{"d"}},
				{"empty", LowerBound([]byte("x"), false), nil},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					assert.Equal(t, tt.want, scan(t, db, tt.rng))
				})
			}
		})
	}
}

func TestCursorStoresAreIsolated(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	db := openDB(t, f, "isolated", "data", "data2")
	defer db.Close()

	done := make(chan error, 1)
	err := db.Transaction([]string{"data2"}, ReadWrite, func(tx *Transaction) {
		tx.OnComplete(func() { done <- nil })
		tx.OnAbort(func(err error) { done <- err })
		s, err := tx.ObjectStore("data2")
		require.NoError(t, err)
		_, err = s.Put([]byte("x"), "other")
		require.NoError(t, err)
	})
	require.NoError(t, err)
	require.NoError(t, <-done)

	putAll(t, db, "a", "1")
	assert.Equal(t, []string{"a"}, scan(t, db, nil))
}

func TestCursorWithoutContinueCompletes(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	db := openDB(t, f, "stop", "data")
	defer db.Close()

	putAll(t, db, "a", "1", "b", "2")

	var seen []string
	var kept *Cursor
	err := run(t, db, ReadOnly, func(tx *Transaction, s *ObjectStore) {
		req, err := s.OpenCursor(nil)
		require.NoError(t, err)
		req.OnSuccess(func(r *Request) {
			kept = r.Cursor()
			seen = append(seen, string(kept.Key()))
			assert.Equal(t, "1", kept.Value())
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, seen)
	assert.ErrorIs(t, kept.Continue(), ErrInactive)
}

func TestReadWriteTransactionsAreSerialized(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	db := openDB(t, f, "serial", "data")
	defer db.Close()

	var order []string
	done := make(chan struct{}, 2)
	for _, name := range []string{"first", "second"} {
		err := db.Transaction([]string{"data"}, ReadWrite, func(tx *Transaction) {
			order = append(order, name+" start")
			tx.OnComplete(func() {
				order = append(order, name+" complete")
				done <- struct{}{}
			})
			s, err := tx.ObjectStore("data")
			require.NoError(t, err)
			_, err = s.Put([]byte(name), name)
			require.NoError(t, err)
		})
		require.NoError(t, err)
	}
	<-done
	<-done

	assert.Equal(t, []string{"first start", "first complete", "second start", "second complete"}, order)
}

func TestCloseRejectsNewTransactions(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	db := openDB(t, f, "closed", "data")
	db.Close()

	err := db.Transaction([]string{"data"}, ReadOnly, nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, db.Ping(), ErrClosed)
}

func TestDeleteDatabase(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()

	ctx := context.Background()
	db := openDB(t, f, "del", "data")
	putAll(t, db, "a", "1")

	assert.ErrorIs(t, f.DeleteDatabase(ctx, "del"), ErrBlocked)

	db.Close()
	require.NoError(t, f.DeleteDatabase(ctx, "del"))

	upgraded := atomic.NewBool(false)
	done := make(chan *Database, 1)
	f.Open("del", func(r *OpenRequest) {
		r.OnUpgradeNeeded(func(db *Database) error {
			upgraded.Store(true)
			return db.CreateObjectStore("data")
		})
		r.OnSuccess(func(db *Database) { done <- db })
	})
	db = <-done
	defer db.Close()

	assert.True(t, upgraded.Load())
	assert.Nil(t, get(t, db, "a"))
}

func TestDeleteDatabaseNeverOpened(t *testing.T) {
	f := NewFactory(kv.NewSkiplistOpener())
	defer f.Close()
	assert.NoError(t, f.DeleteDatabase(context.Background(), "never"))
}

func TestSharedConnections(t *testing.T) {
	f := NewFactory(kv.NewMemPebbleOpener())
	defer f.Close()

	a := openDB(t, f, "shared", "data")
	b := openDB(t, f, "shared", "data")
	defer b.Close()

	putAll(t, a, "k", "v")
	a.Close()

	assert.Equal(t, "v", get(t, b, "k"))
	assert.ErrorIs(t, f.DeleteDatabase(context.Background(), "shared"), ErrBlocked)
}
