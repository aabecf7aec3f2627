package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/peer"
	"github.com/ethereum/go-ethereum/common"
)

// ErrChainBehind is returned when a proposed block is further ahead than the
// next block. The node needs to sync with the peer that sent it.
var ErrChainBehind = errors.New("chain is behind, sync required")

// =============================================================================

// ProcessProposedBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local blockchain.
func (s *State) ProcessProposedBlock(block database.Block) error {
	s.evHandler("state: ProcessProposedBlock: started: %s: prevBlk[%s]: txs[%d]", block, block.Header.PrevHash.TerminalString(), len(block.Trans))
	defer s.evHandler("state: ProcessProposedBlock: completed: %s", block)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Blocks that can't extend the tail are turned away before any hashing
	// and before mining is disturbed. The tail is read without the gate,
	// which an exclusive search holds. The checks run again under the gate.
	if err := checkIndex(block, s.db.Tail()); err != nil {
		return err
	}

	// The expensive checks happen before touching the gate.
	if err := block.ValidateHash(s.db.Hasher()); err != nil {
		return err
	}

	if err := database.ValidateTransactions(s.genesis.Algorithm, block.Trans); err != nil {
		return err
	}

	// In exclusive mode the runMiningOperation function holds the gate and
	// needs to stop immediately. The G executing runMiningOperation will not
	// return from the function until done is called. That allows this function
	// to complete its state changes before a new mining operation takes place.
	// Optimistic mining keeps going and rebuilds on the new tail at commit.
	done := func() {}
	if s.miningMode == MiningExclusive {
		done = s.Worker.SignalCancelMining()
	}
	defer func() {
		s.evHandler("state: ProcessProposedBlock: signal runMiningOperation to terminate")
		done()
	}()

	err := s.db.Exclusive(func(g *database.Gate) error {
		if err := checkIndex(block, g.Tail()); err != nil {
			return err
		}

		return g.AppendBlock(block)
	})
	if err != nil {
		return err
	}

	s.blockEvent(block)

	return nil
}

// SyncFrom downloads and applies the blocks the peer has that this node
// does not, then pulls the peer's pending transactions.
func (s *State) SyncFrom(ctx context.Context, pr peer.Peer) error {
	s.evHandler("state: SyncFrom: started: peer[%s]", pr.Host)
	defer s.evHandler("state: SyncFrom: completed: peer[%s]", pr.Host)

	status, err := s.gateway.Status(ctx, pr)
	if err != nil {
		return err
	}

	// Learn about the peers this peer knows.
	s.gateway.AddPeers(status.KnownPeers)

	// If this peer has blocks we don't have, we need to add them.
	if from := s.db.Tail().Header.Index + 1; status.TailIndex >= from {
		blocks, err := s.gateway.Blocks(ctx, pr, from, status.TailIndex)
		if err != nil {
			return err
		}

		s.evHandler("state: SyncFrom: peer[%s]: found blocks[%d]", pr.Host, len(blocks))

		for _, block := range blocks {
			if err := s.ProcessProposedBlock(block); err != nil {
				return err
			}
		}
	}

	// Pick up anything this node missed while behind.
	pending, err := s.gateway.Pending(ctx, pr)
	if err != nil {
		return err
	}

	known := make(map[common.Hash]bool)
	for _, tx := range s.db.Pending() {
		known[tx.ID()] = true
	}

	for _, tx := range pending {
		if known[tx.ID()] {
			continue
		}
		if err := s.ProcessNodeTransaction(tx); err != nil {
			s.evHandler("state: SyncFrom: peer[%s]: tx[%s]: WARNING: %s", pr.Host, tx, err)
		}
	}

	return nil
}

// checkIndex places the block relative to the tail. A block from further
// ahead needs a sync first. A block at or below the tail, or one built on a
// different parent, competes with a committed block and loses.
func checkIndex(block database.Block, tail database.Block) error {
	switch {
	case block.Header.Index > tail.Header.Index+1:
		return fmt.Errorf("%w: %s: tail is blk[%d]", ErrChainBehind, block, tail.Header.Index)

	case block.Header.Index <= tail.Header.Index:
		return fmt.Errorf("%w: %s: competing with committed blk[%d]", database.ErrChainMismatch, block, block.Header.Index)

	case block.Header.PrevHash != tail.Hash:
		return fmt.Errorf("%w: %s: parent is not blk[%d]", database.ErrChainMismatch, block, tail.Header.Index)
	}

	return nil
}
