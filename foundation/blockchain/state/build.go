package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/gateway"
	"github.com/ardanlabs/qchain/foundation/blockchain/pow"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("no pending transactions")

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can become
// the next block in the chain. The drained transactions are requeued when the
// block can't be committed.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	defer s.setStage(StageIdle)

	if s.miningMode == MiningOptimistic {
		return s.mineOptimistic(ctx)
	}

	return s.mineExclusive(ctx)
}

// BroadcastBlock queues the block for every known peer.
func (s *State) BroadcastBlock(ctx context.Context, block database.Block) error {
	s.setStage(StageBroadcasting)
	defer s.setStage(StageIdle)

	return s.gateway.Broadcast(ctx, gateway.BlockCommand(block))
}

// =============================================================================

// mineExclusive holds the gate for the whole cycle. Every other writer waits
// until the search completes or is cancelled.
func (s *State) mineExclusive(ctx context.Context) (database.Block, error) {
	var block database.Block

	err := s.db.Exclusive(func(g *database.Gate) error {
		if g.PendingCount() == 0 {
			return ErrNoTransactions
		}

		s.setStage(StageBuilding)
		tail := g.Tail()
		txs := g.DrainPending()

		b, err := s.solve(ctx, database.NewBlock(tail, txs, time.Now()))
		if err != nil {
			g.Requeue(txs)
			return err
		}

		s.setStage(StageCommitting)
		if err := g.AppendMinedBlock(b); err != nil {
			g.Requeue(txs)
			return err
		}

		block = b
		return nil
	})
	if err != nil {
		return database.Block{}, err
	}

	s.blockEvent(block)

	return block, nil
}

// mineOptimistic drains under the gate, searches without it and commits
// through AppendMinedBlock. A commit that finds the tail moved is rebuilt on the
// new tail.
func (s *State) mineOptimistic(ctx context.Context) (database.Block, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		var tail database.Block
		var txs []database.Tx

		err := s.db.Exclusive(func(g *database.Gate) error {
			if g.PendingCount() == 0 {
				return ErrNoTransactions
			}

			s.setStage(StageBuilding)
			tail = g.Tail()
			txs = g.DrainPending()
			return nil
		})
		if err != nil {
			return database.Block{}, err
		}

		block, err := s.solve(ctx, database.NewBlock(tail, txs, time.Now()))
		if err != nil {
			s.db.Requeue(txs)
			return database.Block{}, err
		}

		s.setStage(StageCommitting)
		err = s.db.AppendMinedBlock(block)
		switch {
		case err == nil:
			s.blockEvent(block)
			return block, nil

		case errors.Is(err, database.ErrChainMismatch):
			s.db.Requeue(txs)
			s.evHandler("state: MineNewBlock: MINING: attempt[%d]: tail moved, rebuilding: %s", attempt, err)

		default:
			s.db.Requeue(txs)
			return database.Block{}, err
		}
	}

	return database.Block{}, fmt.Errorf("%w: gave up after %d attempts", database.ErrChainMismatch, s.maxRetries)
}

// solve runs the proof of work for the candidate on its own goroutine and
// fills in the nonce and hash.
func (s *State) solve(ctx context.Context, block database.Block) (database.Block, error) {
	s.setStage(StageMining)
	s.evHandler("state: MineNewBlock: MINING: blk[%d]: prevBlk[%s]: txs[%d]: difficulty[%d]", block.Header.Index, block.Header.PrevHash.TerminalString(), len(block.Trans), block.Header.Difficulty)

	// Log the transactions that are a part of this potential block.
	for _, tx := range block.Trans {
		s.evHandler("state: MineNewBlock: MINING: tx[%s]", tx)
	}

	t := time.Now()
	out := <-pow.Run(ctx, s.db.Hasher(), block.HeaderBytes(), block.Header.Difficulty)
	if out.Err != nil {
		s.evHandler("state: MineNewBlock: MINING: CANCELLED: attempts[%d]: %s", out.Attempts, out.Err)
		return database.Block{}, out.Err
	}

	block.Header.Nonce = out.Nonce
	block.Hash = out.Digest

	s.evHandler("state: MineNewBlock: MINING: SOLVED: %s: attempts[%d]: duration[%v]", block, out.Attempts, time.Since(t))

	return block, nil
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	data, err := json.Marshal(block)
	if err != nil {
		data = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: %s`, string(data))
}
