package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/qchain/foundation/blockchain/state"
)

// miningOperations runs a mining cycle when signalled and on every tick
// that finds pending transactions.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
		case <-w.miningTicker.C:
			if w.state.QueryPendingLength() == 0 {
				continue
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}

		if w.isShutdown() {
			continue
		}

		w.runMiningOperation()
	}
}

// runMiningOperation mines one block from the pending transactions. It
// returns once the block is committed and broadcast, or once the cycle is
// cancelled and the canceller has released it.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started: mode[%s]", w.state.MiningMode())
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	// A cancel queued before this cycle belongs to a peer block that is
	// being applied, or already was. Waiting for its canceller lets that
	// block land first so this cycle builds on it. It runs before mining is
	// checked so a toggle arriving now still takes effect.
	select {
	case wait := <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: waiting for queued canceller")
		<-wait
	default:
	}

	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: runMiningOperation: MINING: turned off")
		return
	}

	if n := w.state.QueryPendingLength(); n == 0 {
		w.evHandler("worker: runMiningOperation: MINING: no transactions to mine")
		return
	}

	// Transactions that arrived during the cycle get their own cycle.
	defer func() {
		if n := w.state.QueryPendingLength(); n > 0 {
			w.evHandler("worker: runMiningOperation: MINING: signal new mining operation: txs[%d]", n)
			w.SignalStartMining()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// wait is handed over by SignalCancelMining. The canceller applies its
	// changes before closing it, so this cycle blocks on it before the next
	// one can start.
	var wait chan struct{}
	defer func() {
		if wait != nil {
			w.evHandler("worker: runMiningOperation: MINING: waiting for canceller")
			<-wait
			w.evHandler("worker: runMiningOperation: MINING: canceller released")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()

		select {
		case wait = <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
		case <-ctx.Done():
		}
	}()

	go func() {
		defer wg.Done()
		defer cancel()

		w.mine(ctx)
	}()

	wg.Wait()
}

// mine builds, solves and commits a block, then proposes it to the peers.
func (w *Worker) mine(ctx context.Context) {
	start := time.Now()
	block, err := w.state.MineNewBlock(ctx)
	w.evHandler("worker: runMiningOperation: MINING: duration[%v]", time.Since(start))

	switch {
	case err == nil:

	case errors.Is(err, state.ErrNoTransactions):
		w.evHandler("worker: runMiningOperation: MINING: WARNING: no transactions pending")
		return

	case ctx.Err() != nil:
		w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
		return

	default:
		w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		return
	}

	// The mining context is cancelled as soon as this returns, so the
	// broadcast gets its own deadline.
	bctx, bcancel := context.WithTimeout(context.Background(), netTimeout)
	defer bcancel()

	if err := w.state.BroadcastBlock(bctx, block); err != nil {
		w.evHandler("worker: runMiningOperation: MINING: BroadcastBlock: WARNING: %s", err)
	}
}
