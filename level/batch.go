package level

import (
	"context"
	"fmt"
	"slices"

	"github.com/aep/cursorkv/idb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type OpType uint8

const (
	OpPut OpType = iota + 1
	OpDel
)

func (t OpType) String() string {
	switch t {
	case OpPut:
		return "put"
	case OpDel:
		return "del"
	}
	return fmt.Sprintf("OpType(%d)", t)
}

// Op is one entry of a batch. Value is ignored for OpDel.
type Op struct {
	Type  OpType
	Key   []byte
	Value Value
}

type opKind uint8

const (
	opPut opKind = iota
	opRemove
)

type nativeOp struct {
	kind  opKind
	key   []byte
	value Value
}

// normalizeBatch encodes every operation and keeps only the last operation
// for each key, in submission order.
func normalizeBatch(ops []Op, o *Options) ([]nativeOp, error) {
	out := make([]nativeOp, 0, len(ops))
	for i, op := range ops {
		if len(op.Key) == 0 {
			return nil, fmt.Errorf("op %d: %w", i, ErrInvalidKey)
		}
		var n nativeOp
		switch op.Type {
		case OpPut:
			if !op.Value.storable() {
				return nil, fmt.Errorf("op %d: %w", i, ErrInvalidValue)
			}
			n.kind = opPut
			n.key, n.value = normalize(op.Key, op.Value, o)
		case OpDel:
			n.kind = opRemove
			n.key = op.Key
		default:
			return nil, fmt.Errorf("op %d: %w: %s", i, ErrInvalidOp, op.Type)
		}
		out = append(out, n)
	}

	seen := make(map[string]bool, len(out))
	kept := make([]nativeOp, 0, len(out))
	for i := len(out) - 1; i >= 0; i-- {
		k := string(out[i].key)
		if seen[k] {
			continue
		}
		seen[k] = true
		kept = append(kept, out[i])
	}
	slices.Reverse(kept)
	return kept, nil
}

// Batch applies ops atomically. Either all of them are visible afterwards or
// none is.
func (s *Store) Batch(ctx context.Context, ops []Op, o *Options) (err error) {
	if len(ops) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "level.Store.Batch", trace.WithAttributes(attribute.Int("ops", len(ops))))
	defer func() { endSpan(span, err) }()

	normalized, err := normalizeBatch(ops, o)
	if err != nil {
		return err
	}

	err = s.transact(ctx, idb.ReadWrite, func(st *idb.ObjectStore) error {
		for _, op := range normalized {
			var err error
			switch op.kind {
			case opPut:
				_, err = st.Put(op.key, op.value.Native())
			case opRemove:
				_, err = st.Delete(op.key)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	s.log.Debug("[level].Batch:", "ops", len(ops), "applied", len(normalized), "err", err)
	return err
}
