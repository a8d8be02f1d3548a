package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/eigerco/statedb/internal/crypto"
)

var ErrInvalidBlock = errors.New("invalid block encoding")

const blockHeaderSize = crypto.HashSize + 4

// Block is the unit stored by Chain. Its identity is the hash of its encoding.
type Block struct {
	ParentHash crypto.Hash
	Slot       uint32
	Payload    []byte
}

// Bytes encodes the block as parent hash, big-endian slot, then payload.
func (b Block) Bytes() []byte {
	out := make([]byte, blockHeaderSize, blockHeaderSize+len(b.Payload))
	copy(out, b.ParentHash[:])
	binary.BigEndian.PutUint32(out[crypto.HashSize:], b.Slot)
	return append(out, b.Payload...)
}

func (b Block) Hash() crypto.Hash {
	return crypto.HashData(b.Bytes())
}

func BlockFromBytes(data []byte) (Block, error) {
	if len(data) < blockHeaderSize {
		return Block{}, fmt.Errorf("%w: %d bytes", ErrInvalidBlock, len(data))
	}
	var b Block
	copy(b.ParentHash[:], data)
	b.Slot = binary.BigEndian.Uint32(data[crypto.HashSize:])
	if len(data) > blockHeaderSize {
		b.Payload = append([]byte(nil), data[blockHeaderSize:]...)
	}
	return b, nil
}
