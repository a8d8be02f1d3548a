package db

import (
	"bytes"
	"iter"
)

// IterDirection is the order in which keys are visited.
type IterDirection uint8

const (
	// Forward visits keys in ascending lexicographic order.
	Forward IterDirection = iota
	// Reverse visits keys in descending lexicographic order.
	Reverse
)

func (d IterDirection) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// IterOptions restricts an iteration within a column.
// A nil Prefix or Start means no restriction.
// Start is inclusive: forward iteration yields keys >= Start,
// reverse iteration yields keys <= Start.
type IterOptions struct {
	Prefix    []byte
	Start     []byte
	Direction IterDirection
}

// Range returns the half-open interval [lower, upper) holding exactly the keys
// admitted by the options. A nil bound is unbounded.
func (o IterOptions) Range() (lower, upper []byte) {
	lower = o.Prefix
	upper = PrefixEnd(o.Prefix)
	if o.Start == nil {
		return lower, upper
	}

	if o.Direction == Reverse {
		// keys <= start are exactly the keys < start+0x00
		after := append(bytes.Clone(o.Start), 0)
		if upper == nil || bytes.Compare(after, upper) < 0 {
			upper = after
		}
		return lower, upper
	}

	if lower == nil || bytes.Compare(o.Start, lower) > 0 {
		lower = o.Start
	}
	return lower, upper
}

// Admits reports whether key lies in the range described by the options.
func (o IterOptions) Admits(key []byte) bool {
	lower, upper := o.Range()
	return InRange(key, lower, upper)
}

// InRange reports whether lower <= key < upper, treating nil bounds as open.
func InRange(key, lower, upper []byte) bool {
	if lower != nil && bytes.Compare(key, lower) < 0 {
		return false
	}
	if upper != nil && bytes.Compare(key, upper) >= 0 {
		return false
	}
	return true
}

// PrefixEnd returns the smallest key greater than every key starting with prefix,
// or nil if no such key exists (empty prefix or all 0xff bytes).
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Entries exposes an iterator as a range-over-func sequence. A failure is
// yielded as the final item with a nil KV. The iterator is closed when the
// sequence ends or the consumer stops early.
func Entries(it Iterator) iter.Seq2[KV, error] {
	return func(yield func(KV, error) bool) {
		defer it.Close() //nolint:errcheck // close error is reported through Err
		for it.Next() {
			if !yield(KV{Key: it.Key(), Value: it.Value()}, nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(KV{}, err)
		}
	}
}

// Collect drains the iterator and closes it. On failure the entries read
// before the failure are returned along with the error.
func Collect(it Iterator) ([]KV, error) {
	var out []KV
	for kv, err := range Entries(it) {
		if err != nil {
			return out, err
		}
		out = append(out, kv)
	}
	return out, nil
}

// ErrorIterator returns an iterator that yields nothing and reports err.
// Backends use it to surface failures that happen before the first entry.
func ErrorIterator(err error) Iterator {
	return &errIterator{err: err}
}

type errIterator struct {
	err error
}

func (e *errIterator) Next() bool    { return false }
func (e *errIterator) Key() []byte   { return nil }
func (e *errIterator) Value() []byte { return nil }
func (e *errIterator) Err() error    { return e.err }
func (e *errIterator) Close() error  { return nil }
