package store

import (
	"fmt"

	"github.com/eigerco/statedb/internal/crypto"
	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/txn"
)

// OwnerIndex maps an owner to the set of item ids it holds. Entries are
// stored as MultiKey(owner, item) with an empty value, so all items of one
// owner are contiguous and ordered by id.
//
// The index works on any TransactableStorage, including a txn.View, so
// callers can combine index updates with their own writes.
type OwnerIndex struct {
	store db.TransactableStorage
}

func NewOwnerIndex(store db.TransactableStorage) *OwnerIndex {
	return &OwnerIndex{store: store}
}

// Add records that owner holds item. It reports whether the entry is new.
func (o *OwnerIndex) Add(owner crypto.Hash, item []byte) (bool, error) {
	_, existed, err := o.store.Put(db.MultiKey(owner[:], item), ColumnOwners, nil)
	if err != nil {
		return false, fmt.Errorf("add owner entry: %w", err)
	}
	return !existed, nil
}

// Remove drops item from owner. It reports whether the entry existed.
func (o *OwnerIndex) Remove(owner crypto.Hash, item []byte) (bool, error) {
	_, existed, err := o.store.Delete(db.MultiKey(owner[:], item), ColumnOwners)
	if err != nil {
		return false, fmt.Errorf("remove owner entry: %w", err)
	}
	return existed, nil
}

func (o *OwnerIndex) Contains(owner crypto.Hash, item []byte) (bool, error) {
	return o.store.Exists(db.MultiKey(owner[:], item), ColumnOwners)
}

// Transfer moves item from one owner to another in a single transaction.
// It fails without changes when from does not hold item.
func (o *OwnerIndex) Transfer(item []byte, from, to crypto.Hash) error {
	return txn.Do(o.store, func(v *txn.View) error {
		_, existed, err := v.Delete(db.MultiKey(from[:], item), ColumnOwners)
		if err != nil {
			return err
		}
		if !existed {
			return fmt.Errorf("%x is not held by %s", item, from)
		}
		_, _, err = v.Put(db.MultiKey(to[:], item), ColumnOwners, nil)
		return err
	})
}

// List returns up to limit items of owner in the given direction, starting
// at start inclusive when it is set. A limit of zero means no limit.
func (o *OwnerIndex) List(owner crypto.Hash, start []byte, dir db.IterDirection, limit int) ([][]byte, error) {
	opts := db.IterOptions{Prefix: owner[:], Direction: dir}
	if start != nil {
		opts.Start = db.MultiKey(owner[:], start)
	}

	var items [][]byte
	for kv, err := range db.Entries(o.store.Iterate(ColumnOwners, opts)) {
		if err != nil {
			return nil, fmt.Errorf("list owner entries: %w", err)
		}
		_, item, err := db.SplitMultiKey(kv.Key, crypto.HashSize)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items, nil
}
