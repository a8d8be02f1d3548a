package txn

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/internal/ordered"
)

// State is the lifecycle state of a View.
type State uint8

const (
	Open State = iota
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// View buffers writes on top of a base storage. Reads see the buffered writes
// layered over the base (read-your-own-writes). A View is confined to the
// goroutine running its transaction and is unusable once committed or aborted.
//
// A View is itself a TransactableStorage: running a transaction against it
// nests, and the nested commit only lands in this View's buffer.
type View struct {
	id      uuid.UUID
	base    db.TransactableStorage
	depth   int
	state   State
	pending map[db.Column]*ordered.Tree
}

var _ db.TransactableStorage = (*View)(nil)

func newView(base db.TransactableStorage) *View {
	depth := 0
	if parent, ok := base.(*View); ok {
		depth = parent.depth + 1
	}
	return &View{
		id:      uuid.New(),
		base:    base,
		depth:   depth,
		pending: make(map[db.Column]*ordered.Tree),
	}
}

// ID identifies the transaction in logs.
func (v *View) ID() uuid.UUID {
	return v.id
}

// Depth is 0 for a top-level transaction and grows by one per nesting level.
func (v *View) Depth() int {
	return v.depth
}

func (v *View) State() State {
	return v.state
}

// Pending returns the number of buffered writes.
func (v *View) Pending() int {
	n := 0
	for _, tree := range v.pending {
		n += tree.Len()
	}
	return n
}

func (v *View) Get(key []byte, column db.Column) ([]byte, bool, error) {
	if v.state != Open {
		return nil, false, ErrNotOpen
	}
	return v.lookup(key, column)
}

func (v *View) Put(key []byte, column db.Column, value []byte) ([]byte, bool, error) {
	if v.state != Open {
		return nil, false, ErrNotOpen
	}
	prev, existed, err := v.lookup(key, column)
	if err != nil {
		return nil, false, err
	}
	v.buffer(db.Insert(key, column, value))
	return prev, existed, nil
}

func (v *View) Delete(key []byte, column db.Column) ([]byte, bool, error) {
	if v.state != Open {
		return nil, false, ErrNotOpen
	}
	prev, existed, err := v.lookup(key, column)
	if err != nil {
		return nil, false, err
	}
	v.buffer(db.Remove(key, column))
	return prev, existed, nil
}

func (v *View) Exists(key []byte, column db.Column) (bool, error) {
	if v.state != Open {
		return false, ErrNotOpen
	}
	if tree, ok := v.pending[column]; ok {
		if e, ok := tree.Get(key); ok {
			return !e.Deleted, nil
		}
	}
	return v.base.Exists(key, column)
}

// Iterate merges the base iterator with the buffered writes of the column.
// Writes made after Iterate returns are not visible to the iterator.
func (v *View) Iterate(column db.Column, opts db.IterOptions) db.Iterator {
	if v.state != Open {
		return db.ErrorIterator(ErrNotOpen)
	}
	base := v.base.Iterate(column, opts)
	tree, ok := v.pending[column]
	if !ok {
		return base
	}
	lower, upper := opts.Range()
	return newMergeIterator(base, tree.Clone().Seq(lower, upper, opts.Direction), opts.Direction)
}

// BatchWrite buffers the operations; nothing reaches the base until commit.
func (v *View) BatchWrite(ops []db.WriteOperation) error {
	if v.state != Open {
		return ErrNotOpen
	}
	for i, op := range ops {
		if op.Kind != db.OpInsert && op.Kind != db.OpRemove {
			return &db.BatchError{Index: i, Op: op, Err: fmt.Errorf("unknown operation kind %d", op.Kind)}
		}
	}
	for _, op := range ops {
		v.buffer(op)
	}
	return nil
}

func (v *View) String() string {
	return fmt.Sprintf("txn.View{id: %s, depth: %d, state: %s, pending: %d, base: %s}",
		v.id, v.depth, v.state, v.Pending(), v.base)
}

func (v *View) lookup(key []byte, column db.Column) ([]byte, bool, error) {
	if tree, ok := v.pending[column]; ok {
		if e, ok := tree.Get(key); ok {
			if e.Deleted {
				return nil, false, nil
			}
			return bytes.Clone(e.Value), true, nil
		}
	}
	return v.base.Get(key, column)
}

func (v *View) buffer(op db.WriteOperation) {
	tree, ok := v.pending[op.Column]
	if !ok {
		tree = ordered.New()
		v.pending[op.Column] = tree
	}
	e := ordered.Entry{Key: bytes.Clone(op.Key)}
	if op.Kind == db.OpRemove {
		e.Deleted = true
	} else {
		e.Value = bytes.Clone(op.Value)
		if e.Value == nil {
			e.Value = []byte{}
		}
	}
	tree.Set(e)
}

// operations lists the buffered writes ordered by column, then key.
func (v *View) operations() []db.WriteOperation {
	columns := make([]db.Column, 0, len(v.pending))
	for c := range v.pending {
		columns = append(columns, c)
	}
	slices.Sort(columns)

	ops := make([]db.WriteOperation, 0, v.Pending())
	for _, c := range columns {
		v.pending[c].Walk(nil, nil, db.Forward, func(e ordered.Entry) bool {
			if e.Deleted {
				ops = append(ops, db.Remove(e.Key, c))
			} else {
				ops = append(ops, db.Insert(e.Key, c, e.Value))
			}
			return true
		})
	}
	return ops
}

func (v *View) discard(state State) {
	v.state = state
	v.pending = nil
}
