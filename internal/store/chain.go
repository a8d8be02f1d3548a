package store

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/eigerco/statedb/internal/crypto"
	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/txn"
	"github.com/eigerco/statedb/pkg/log"
)

var (
	ErrBlockNotFound = errors.New("block not found")
	ErrChainClosed   = errors.New("chain store is closed")
)

var metadataLatest = []byte("latest")

// Chain manages block storage on top of a db.Backend
type Chain struct {
	db     db.Backend
	closed atomic.Bool
}

// NewChain creates a new chain store. Closing the chain closes the backend.
func NewChain(store db.Backend) *Chain {
	return &Chain{db: store}
}

// PutBlock stores a block, its parent's child index entry and the latest
// block marker in one transaction
func (c *Chain) PutBlock(b Block) error {
	if c.closed.Load() {
		return ErrChainClosed
	}

	hash := b.Hash()
	err := txn.Do(c.db, func(v *txn.View) error {
		if _, _, err := v.Put(hash[:], ColumnBlocks, b.Bytes()); err != nil {
			return fmt.Errorf("store block: %w", err)
		}
		if _, _, err := v.Put(db.MultiKey(b.ParentHash[:], hash[:]), ColumnBlockChildren, nil); err != nil {
			return fmt.Errorf("store child index: %w", err)
		}
		if _, _, err := v.Put(metadataLatest, ColumnMetadata, hash[:]); err != nil {
			return fmt.Errorf("store latest block: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf(ErrFailedTransaction, err)
	}
	log.Storage.Debug().Stringer("hash", hash).Uint32("slot", b.Slot).Msg("stored block")
	return nil
}

// GetBlock retrieves a block by its hash
func (c *Chain) GetBlock(hash crypto.Hash) (Block, error) {
	if c.closed.Load() {
		return Block{}, ErrChainClosed
	}

	blockBytes, ok, err := c.db.Get(hash[:], ColumnBlocks)
	if err != nil {
		return Block{}, fmt.Errorf("get block: %w", err)
	}
	if !ok {
		return Block{}, ErrBlockNotFound
	}
	return BlockFromBytes(blockBytes)
}

// LatestBlock returns the hash of the most recently stored block.
func (c *Chain) LatestBlock() (crypto.Hash, bool, error) {
	if c.closed.Load() {
		return crypto.Hash{}, false, ErrChainClosed
	}
	value, ok, err := c.db.Get(metadataLatest, ColumnMetadata)
	if err != nil || !ok {
		return crypto.Hash{}, false, err
	}
	if len(value) != crypto.HashSize {
		return crypto.Hash{}, false, fmt.Errorf("latest block marker has %d bytes", len(value))
	}
	return crypto.Hash(value), true, nil
}

// FindChildren finds all immediate child blocks for a given block hash,
// ordered by child hash
func (c *Chain) FindChildren(parentHash crypto.Hash) ([]Block, error) {
	if c.closed.Load() {
		return nil, ErrChainClosed
	}

	var childHashes []crypto.Hash
	it := c.db.Iterate(ColumnBlockChildren, db.IterOptions{Prefix: parentHash[:]})
	for kv, err := range db.Entries(it) {
		if err != nil {
			return nil, fmt.Errorf("scan child index: %w", err)
		}
		_, child, err := db.SplitMultiKey(kv.Key, crypto.HashSize)
		if err != nil {
			return nil, err
		}
		childHashes = append(childHashes, crypto.Hash(child))
	}

	children := make([]Block, 0, len(childHashes))
	for _, h := range childHashes {
		b, err := c.GetBlock(h)
		if err != nil {
			log.Storage.Warn().Err(err).Stringer("hash", h).Msg("child index points to unreadable block")
			continue
		}
		children = append(children, b)
	}
	return children, nil
}

// GetBlockSequence retrieves a sequence of blocks.
// If ascending is true, returns descendants of the start block (exclusive),
// following the first child at each step.
// If ascending is false, returns the start block and its ancestors (inclusive).
func (c *Chain) GetBlockSequence(startHash crypto.Hash, ascending bool, maxBlocks uint32) ([]Block, error) {
	if c.closed.Load() {
		return nil, ErrChainClosed
	}

	currentBlock, err := c.GetBlock(startHash)
	if err != nil {
		if errors.Is(err, ErrBlockNotFound) {
			return nil, fmt.Errorf("starting block not found: %w", err)
		}
		return nil, fmt.Errorf("get starting block: %w", err)
	}

	var blocks []Block
	for uint32(len(blocks)) < maxBlocks {
		if ascending {
			children, err := c.FindChildren(currentBlock.Hash())
			if err != nil {
				return nil, fmt.Errorf("find children in sequence: %w", err)
			}
			if len(children) == 0 {
				break
			}
			currentBlock = children[0]
			blocks = append(blocks, currentBlock)
			continue
		}

		blocks = append(blocks, currentBlock)
		currentBlock, err = c.GetBlock(currentBlock.ParentHash)
		if err != nil {
			if errors.Is(err, ErrBlockNotFound) {
				break
			}
			return nil, fmt.Errorf("get block in sequence: %w", err)
		}
	}

	return blocks, nil
}

// Close closes the chain store
func (c *Chain) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.db.Close()
}
