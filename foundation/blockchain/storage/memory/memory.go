// Package memory keeps committed blocks in a slice. Nothing survives a
// restart, which suits tests and throwaway nodes.
package memory

import (
	"fmt"
	"sync"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
)

// Memory implements database.Serializer over a slice where blocks[i] holds
// block number i+1.
type Memory struct {
	mu     sync.RWMutex
	blocks []database.Block
}

// New constructs an empty Memory store.
func New() *Memory {
	return &Memory{}
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// Write stores the block. Blocks must arrive in index order starting at 1.
func (m *Memory) Write(block database.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if next := uint64(len(m.blocks)) + 1; block.Header.Index != next {
		return fmt.Errorf("block %d is out of order, expecting %d", block.Header.Index, next)
	}

	m.blocks = append(m.blocks, block)

	return nil
}

// GetBlock returns the block with the specified number.
func (m *Memory) GetBlock(num uint64) (database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if num == 0 || num > uint64(len(m.blocks)) {
		return database.Block{}, fmt.Errorf("block %d does not exist", num)
	}

	return m.blocks[num-1], nil
}

// ForEach returns an iterator over the blocks stored at the time of the
// call. Later writes are not observed.
func (m *Memory) ForEach() database.Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &iterator{blocks: m.blocks[:len(m.blocks):len(m.blocks)]}
}

// Reset drops every stored block.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = nil

	return nil
}

// =============================================================================

type iterator struct {
	blocks []database.Block
	next   int
}

// Next returns the next block. Once the blocks are exhausted it reports an
// error and Done returns true.
func (it *iterator) Next() (database.Block, error) {
	if it.next >= len(it.blocks) {
		it.next = len(it.blocks) + 1
		return database.Block{}, fmt.Errorf("end of chain")
	}

	block := it.blocks[it.next]
	it.next++

	return block, nil
}

// Done reports whether Next has run past the last block.
func (it *iterator) Done() bool {
	return it.next > len(it.blocks)
}
