package db

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrShortKey = errors.New("key shorter than its fixed-width part")

// Bytes is any type with a plain byte representation.
type Bytes interface {
	~[]byte | ~string
}

// MultiKey builds a composite key by concatenating the bytes of both parts,
// with no separator and no length prefix. Keys sharing k1 sort contiguously
// and in k2 order, but the result can only be split back when k1 has a fixed width.
func MultiKey[K1, K2 Bytes](k1 K1, k2 K2) []byte {
	key := make([]byte, 0, len(k1)+len(k2))
	key = append(key, k1...)
	return append(key, k2...)
}

// SplitMultiKey splits a composite key whose first part is width bytes long.
func SplitMultiKey(key []byte, width int) (k1, k2 []byte, err error) {
	if width < 0 || len(key) < width {
		return nil, nil, fmt.Errorf("split %d-byte key at %d: %w", len(key), width, ErrShortKey)
	}
	return key[:width:width], key[width:], nil
}

// ColumnKey prefixes key with its column, giving the flat key used by engines
// that keep every column in one ordered keyspace.
func ColumnKey(column Column, key []byte) []byte {
	return MultiKey(column.Bytes(), key)
}

// SplitColumnKey reverses ColumnKey.
func SplitColumnKey(key []byte) (Column, []byte, error) {
	c, k, err := SplitMultiKey(key, ColumnSize)
	if err != nil {
		return 0, nil, err
	}
	return Column(binary.BigEndian.Uint32(c)), k, nil
}

// ColumnRange maps an in-column range to the flat keyspace of ColumnKey.
func ColumnRange(column Column, lower, upper []byte) (flatLower, flatUpper []byte) {
	flatLower = ColumnKey(column, lower)
	if upper != nil {
		flatUpper = ColumnKey(column, upper)
	} else {
		flatUpper = PrefixEnd(column.Bytes())
	}
	return flatLower, flatUpper
}
