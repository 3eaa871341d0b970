package idb

import "errors"

var (
	ErrNotFoundStore = errors.New("idb: object store not found")
	ErrConstraint    = errors.New("idb: object store already exists")
	ErrReadOnly      = errors.New("idb: transaction is readonly")
	ErrInactive      = errors.New("idb: transaction is not active")
	ErrInvalidState  = errors.New("idb: invalid state")
	ErrClosed        = errors.New("idb: database connection is closed")
	ErrBlocked       = errors.New("idb: database has open connections")
	ErrData          = errors.New("idb: invalid key, value or key range")
	ErrAborted       = errors.New("idb: transaction aborted")
)
