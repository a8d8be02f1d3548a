package bolt

import (
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

// Stored values carry a one-byte header naming their encoding. The header also
// keeps empty values distinguishable from absent keys, which bbolt reports as nil.
const (
	encodingRaw    byte = 0
	encodingSnappy byte = 1
)

var errCorruptValue = errors.New("bolt: stored value has no encoding header")

type codec struct {
	compress bool
}

func (c codec) encode(value []byte) []byte {
	if !c.compress {
		out := make([]byte, 1+len(value))
		out[0] = encodingRaw
		copy(out[1:], value)
		return out
	}
	out := make([]byte, 1+snappy.MaxEncodedLen(len(value)))
	out[0] = encodingSnappy
	encoded := snappy.Encode(out[1:], value)
	return out[:1+len(encoded)]
}

// decode returns a copy of the value that stays valid after the transaction ends.
func (c codec) decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errCorruptValue
	}
	switch raw[0] {
	case encodingRaw:
		out := make([]byte, len(raw)-1)
		copy(out, raw[1:])
		return out, nil
	case encodingSnappy:
		out, err := snappy.Decode(nil, raw[1:])
		if err != nil {
			return nil, fmt.Errorf("bolt: decompress value: %w", err)
		}
		if out == nil {
			out = []byte{}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("bolt: unknown value encoding %d", raw[0])
	}
}
