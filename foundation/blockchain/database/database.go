// Package database handles the ledger: the ordered chain of committed blocks
// and the buffer of pending transactions. Both are guarded by one gate and
// every mutation goes through this package.
package database

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ardanlabs/qchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/qchain/foundation/blockchain/pow"
	"github.com/ethereum/go-ethereum/common"
)

// Set of error variables for the ledger.
var (
	ErrChainMismatch    = errors.New("block does not extend the chain tail")
	ErrInvalidBlockHash = errors.New("invalid block hash")
	ErrSignatureInvalid = errors.New("transaction signature invalid")
)

// Serializer interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain.
type Serializer interface {
	Write(block Block) error
	GetBlock(num uint64) (Block, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (Block, error)
	Done() bool
}

// =============================================================================

// Database manages the chain and the pending transactions.
type Database struct {
	mu sync.RWMutex

	genesis    genesis.Genesis
	hasher     pow.Hasher
	chain      []Block
	pending    []Tx
	serializer Serializer
	evHandler  func(v string, args ...any)

	// Drained transactions are tracked until they are committed or requeued.
	// settled counts drained copies a peer block committed first, which the
	// requeue must drop instead of returning.
	inflight map[common.Hash]int
	settled  map[common.Hash]int

	// tail is readable without the gate, which a mining cycle may hold for
	// the whole search.
	tail atomic.Pointer[Block]
}

// New constructs a new database seeded with the genesis block and replays
// every block held by the serializer. Stored blocks are fully validated.
func New(gen genesis.Genesis, hasher pow.Hasher, serializer Serializer, evHandler func(v string, args ...any)) (*Database, error) {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	db := Database{
		genesis:    gen,
		hasher:     hasher,
		chain:      []Block{GenesisBlock(gen, hasher)},
		serializer: serializer,
		evHandler:  ev,
		inflight:   make(map[common.Hash]int),
		settled:    make(map[common.Hash]int),
	}

	ev("database: New: genesis: %s", db.chain[0])

	iter := serializer.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		if err := db.checkNext(block); err != nil {
			return nil, fmt.Errorf("stored block %d: %w", block.Header.Index, err)
		}

		if err := ValidateTransactions(gen.Algorithm, block.Trans); err != nil {
			return nil, fmt.Errorf("stored block %d: %w", block.Header.Index, err)
		}

		db.chain = append(db.chain, block)
	}

	db.setTail(db.chain[len(db.chain)-1])

	ev("database: New: loaded: blocks[%d]", len(db.chain)-1)

	return &db, nil
}

// Close closes the open blocks database.
func (db *Database) Close() error {
	return db.serializer.Close()
}

// Reset removes every stored block and takes the ledger back to the genesis
// block. Pending transactions are dropped.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.serializer.Reset(); err != nil {
		return err
	}

	db.chain = db.chain[:1]
	db.pending = nil
	clear(db.inflight)
	clear(db.settled)
	db.setTail(db.chain[0])

	db.evHandler("database: Reset: back to genesis")

	return nil
}

// Genesis returns the genesis information.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// Hasher returns the hash oracle used for block hashes.
func (db *Database) Hasher() pow.Hasher {
	return db.hasher
}

// =============================================================================

// Tail returns the latest committed block. It does not wait on the gate.
func (db *Database) Tail() Block {
	return *db.tail.Load()
}

// Length returns the number of blocks including genesis.
func (db *Database) Length() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return len(db.chain)
}

// Blocks returns the committed blocks from through to inclusive. A to value
// beyond the tail is clamped.
func (db *Database) Blocks(from uint64, to uint64) []Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	last := uint64(len(db.chain) - 1)
	if to > last {
		to = last
	}
	if from > to {
		return nil
	}

	return slices.Clone(db.chain[from : to+1])
}

// Pending returns a copy of the pending transactions in order.
func (db *Database) Pending() []Tx {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return slices.Clone(db.pending)
}

// PendingCount returns the number of pending transactions.
func (db *Database) PendingCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return len(db.pending)
}

// SubmitTransaction adds the transaction to the tail of pending. Callers must
// validate the signature first.
func (db *Database) SubmitTransaction(tx Tx) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.submitTransaction(tx)
}

// DrainPending snapshots and clears the pending transactions.
func (db *Database) DrainPending() []Tx {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.drainPending()
}

// AppendBlock commits a block received from a peer on top of the tail. The
// block must link to the tail, inherit its difficulty and carry a valid proof
// of work. The block is written to storage before it becomes visible. Its
// transactions are settled against drained transactions first, then one
// pending copy is pruned for each remaining one. Nothing changes on error.
func (db *Database) AppendBlock(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.appendBlock(block, false)
}

// AppendMinedBlock commits a block built from transactions taken by
// DrainPending. Pending is left alone since those transactions already left
// it, and copies submitted during the search stay queued.
func (db *Database) AppendMinedBlock(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.appendBlock(block, true)
}

// Requeue puts transactions taken by DrainPending back at the front of
// pending in their original order. Copies a peer block committed while they
// were drained are dropped.
func (db *Database) Requeue(txs []Tx) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.requeue(txs)
}

// Exclusive runs the function while holding the gate. The Gate handed to
// the function performs operations without taking the lock again and must
// not be used after the function returns.
func (db *Database) Exclusive(fn func(g *Gate) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return fn(&Gate{db: db})
}

// ValidateChain walks the full chain checking linkage, index, identity hash
// and proof of work for every block.
func (db *Database) ValidateChain() error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	gb := GenesisBlock(db.genesis, db.hasher)
	if db.chain[0].Hash != gb.Hash || db.chain[0].Header.PrevHash != ZeroHash {
		return fmt.Errorf("%w: genesis block does not match genesis", ErrInvalidBlockHash)
	}

	for i := 1; i < len(db.chain); i++ {
		block := db.chain[i]

		if err := block.LinksTo(db.chain[i-1]); err != nil {
			return err
		}

		if err := block.ValidateHash(db.hasher); err != nil {
			return err
		}
	}

	return nil
}

// =============================================================================

// Gate provides the ledger operations while the exclusive lock is held.
type Gate struct {
	db *Database
}

// Tail returns the latest committed block.
func (g *Gate) Tail() Block {
	return g.db.chain[len(g.db.chain)-1]
}

// PendingCount returns the number of pending transactions.
func (g *Gate) PendingCount() int {
	return len(g.db.pending)
}

// SubmitTransaction adds the transaction to the tail of pending.
func (g *Gate) SubmitTransaction(tx Tx) {
	g.db.submitTransaction(tx)
}

// DrainPending snapshots and clears the pending transactions.
func (g *Gate) DrainPending() []Tx {
	return g.db.drainPending()
}

// AppendBlock commits a peer block on top of the tail.
func (g *Gate) AppendBlock(block Block) error {
	return g.db.appendBlock(block, false)
}

// AppendMinedBlock commits a block built from drained transactions.
func (g *Gate) AppendMinedBlock(block Block) error {
	return g.db.appendBlock(block, true)
}

// Requeue puts drained transactions back at the front of pending.
func (g *Gate) Requeue(txs []Tx) {
	g.db.requeue(txs)
}

// =============================================================================

// setTail publishes a copy so later writes to the chain slice are never
// observed through the pointer.
func (db *Database) setTail(block Block) {
	db.tail.Store(&block)
}

func (db *Database) submitTransaction(tx Tx) {
	db.pending = append(db.pending, tx)
	db.evHandler("database: SubmitTransaction: tx[%s]: pending[%d]", tx, len(db.pending))
}

func (db *Database) drainPending() []Tx {
	txs := db.pending
	db.pending = nil

	for _, tx := range txs {
		db.inflight[tx.ID()]++
	}

	return txs
}

func (db *Database) appendBlock(block Block, mined bool) error {
	if err := db.checkNext(block); err != nil {
		return err
	}

	if err := db.serializer.Write(block); err != nil {
		return fmt.Errorf("write %s: %w", block, err)
	}

	db.chain = append(db.chain, block)
	db.setTail(block)

	included := counts(block.Trans)
	switch {
	case mined:
		for id, n := range included {
			take(db.inflight, id, n)
		}

	default:
		for id, n := range included {
			k := min(n, db.inflight[id])
			if k == 0 {
				continue
			}
			take(db.inflight, id, k)
			db.settled[id] += k
			included[id] = n - k
		}
		db.pending = without(db.pending, included)
	}

	db.evHandler("database: AppendBlock: %s: mined[%t]: txs[%d]: pending[%d]", block, mined, len(block.Trans), len(db.pending))

	return nil
}

func (db *Database) requeue(txs []Tx) {
	if len(txs) == 0 {
		return
	}

	back := make([]Tx, 0, len(txs))
	for _, tx := range txs {
		id := tx.ID()
		if db.settled[id] > 0 {
			take(db.settled, id, 1)
			continue
		}
		take(db.inflight, id, 1)
		back = append(back, tx)
	}

	db.pending = slices.Concat(back, db.pending)

	db.evHandler("database: Requeue: returned[%d]: skipped[%d]: pending[%d]", len(back), len(txs)-len(back), len(db.pending))
}

// checkNext validates the block against the current tail.
func (db *Database) checkNext(block Block) error {
	tail := db.chain[len(db.chain)-1]

	if err := block.LinksTo(tail); err != nil {
		return err
	}

	if block.Header.Difficulty != tail.Header.Difficulty {
		return fmt.Errorf("%w: blk[%d]: difficulty %d, parent %d", ErrInvalidBlockHash, block.Header.Index, block.Header.Difficulty, tail.Header.Difficulty)
	}

	return block.ValidateHash(db.hasher)
}

// counts returns how many times each transaction appears.
func counts(txs []Tx) map[common.Hash]int {
	m := make(map[common.Hash]int, len(txs))
	for _, tx := range txs {
		m[tx.ID()]++
	}
	return m
}

// take lowers the count for the id, removing it once nothing is left.
func take(m map[common.Hash]int, id common.Hash, n int) {
	m[id] -= n
	if m[id] <= 0 {
		delete(m, id)
	}
}

// without returns txs minus one occurrence for every count in remove. The
// remove map is consumed.
func without(txs []Tx, remove map[common.Hash]int) []Tx {
	if len(remove) == 0 {
		return txs
	}

	kept := make([]Tx, 0, len(txs))
	for _, tx := range txs {
		id := tx.ID()
		if remove[id] > 0 {
			remove[id]--
			continue
		}
		kept = append(kept, tx)
	}

	return kept
}
