package level

import (
	"context"

	"github.com/aep/cursorkv/idb"
)

// Destroy deletes the database of the store at location. An empty prefix
// means DefaultStorePrefix. It fails with idb.ErrBlocked while the store is
// open.
func Destroy(ctx context.Context, f *idb.Factory, location string, prefix string) error {
	if location == "" {
		return ErrLocationRequired
	}
	if f == nil {
		return ErrNoFactory
	}
	if prefix == "" {
		prefix = DefaultStorePrefix
	}
	err := f.DeleteDatabase(ctx, prefix+location)
	log.Debug("[level].Destroy:", "name", prefix+location, "err", err)
	return err
}

// Destroy deletes the database of a closed store.
func (s *Store) Destroy(ctx context.Context) error {
	if s.factory == nil {
		return ErrNoFactory
	}
	return s.factory.DeleteDatabase(ctx, s.Name())
}
